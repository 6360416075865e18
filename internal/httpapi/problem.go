package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"vortx/internal/apperr"
	"vortx/internal/workflow"
)

// Problem is an RFC 7807 problem detail.
type Problem struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail,omitempty"`
	Instance   string `json:"instance,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
	FailedStep string `json:"failed_step,omitempty"`
}

func writeProblem(c *gin.Context, p Problem) {
	if p.Type == "" {
		p.Type = fmt.Sprintf("https://vortx.dev/errors/%d", p.Status)
	}
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	p.Instance = c.Request.URL.Path
	p.TraceID = c.GetString(requestIDKey)

	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(p.Status, p)
}

const (
	internalDetail = "An unexpected error occurred. Please try again later."
	upstreamDetail = "An upstream service failed. Please try again later."
)

// writeError maps err onto a problem response. Workflow failures caused by an
// external collaborator surface as 500 with the failed step named. Upstream
// and internal error text is logged, never written to the client.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	kind := apperr.Kind(err)
	p := Problem{Status: apperr.HTTPStatus(err), Detail: err.Error()}

	var wfErr *workflow.WorkflowError
	if errors.As(err, &wfErr) {
		p.FailedStep = wfErr.FailedStep
		switch kind {
		case "validation", "auth", "not_found", "conflict":
			p.Detail = wfErr.Cause.Error()
		default:
			p.Status = http.StatusInternalServerError
			p.Detail = fmt.Sprintf("Step %q failed. Please try again later.", wfErr.FailedStep)
		}
	}

	if p.Status >= http.StatusInternalServerError {
		logger.Error("request failed",
			"path", c.Request.URL.Path,
			"request_id", c.GetString(requestIDKey),
			"kind", kind,
			"error", err,
		)
		if wfErr == nil {
			switch kind {
			case "service":
				p.Detail = upstreamDetail
			case "internal":
				p.Detail = internalDetail
			}
		}
	}
	writeProblem(c, p)
}
