package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vortx/internal/apperr"
	"vortx/internal/media"
	"vortx/internal/orders"
)

type wishlistAddRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
}

func (s *server) listWishlist(c *gin.Context) {
	items, err := s.Wishlist.List(c.Request.Context(), c.GetString(customerIDKey))
	if err != nil {
		writeError(c, s.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wishlist": items, "count": len(items)})
}

func (s *server) addWishlistItem(c *gin.Context) {
	var in wishlistAddRequest
	if err := s.schemas.decode(c.Request.Body, "wishlist-add", &in); err != nil {
		writeError(c, s.Logger, err)
		return
	}
	item, err := s.Wishlist.Add(c.Request.Context(), c.GetString(customerIDKey), in.ProductID, in.VariantID)
	if err != nil {
		writeError(c, s.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "item": item})
}

func (s *server) clearWishlist(c *gin.Context) {
	if err := s.Wishlist.Clear(c.Request.Context(), c.GetString(customerIDKey)); err != nil {
		writeError(c, s.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Wishlist cleared"})
}

func (s *server) removeWishlistItem(c *gin.Context) {
	if err := s.Wishlist.Remove(c.Request.Context(), c.GetString(customerIDKey), c.Param("id")); err != nil {
		writeError(c, s.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Item removed from wishlist"})
}

func (s *server) uploadMedia(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, media.MaxUploadSize+(1<<20))
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(c, Problem{Status: http.StatusRequestEntityTooLarge, Detail: "file exceeds upload limit"})
			return
		}
		writeError(c, s.Logger, apperr.Validation("file", "multipart field \"file\" is required"))
		return
	}
	if header.Size > media.MaxUploadSize {
		writeProblem(c, Problem{Status: http.StatusRequestEntityTooLarge, Detail: "file exceeds upload limit"})
		return
	}

	f, err := header.Open()
	if err != nil {
		writeError(c, s.Logger, err)
		return
	}
	defer f.Close()

	key := media.NewKey(header.Filename)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := s.Files.Put(c.Request.Context(), key, contentType, f, header.Size)
	if err != nil {
		writeError(c, s.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"file": gin.H{
			"key":         key,
			"url":         url,
			"size":        header.Size,
			"contentType": contentType,
		},
	})
}

func (s *server) getOrderPayment(c *gin.Context) {
	rec, err := s.Payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, s.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": rec})
}

// orderEvents streams payment status changes for one order over a websocket.
func (s *server) orderEvents(c *gin.Context) {
	orderID := c.Param("id")
	if err := s.Hub.ServeWS(c.Writer, c.Request, orders.OrderTopic(orderID)); err != nil {
		// The upgrader has already written the HTTP error.
		s.Logger.Warn("websocket subscription failed", "order_id", orderID, "error", err)
	}
}

func (s *server) getExecution(c *gin.Context) {
	exec, err := s.Executions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, s.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"execution": exec})
}
