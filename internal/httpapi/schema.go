package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"vortx/internal/apperr"
)

const maxBodyBytes = 1 << 20

const faceDetectSchema = `{
  "type": "object",
  "required": ["imageUrl"],
  "properties": {
    "imageUrl": {"type": "string", "format": "uri", "minLength": 1},
    "customerId": {"type": "string"}
  }
}`

const faceVerifySchema = `{
  "type": "object",
  "required": ["imageUrl1", "imageUrl2"],
  "properties": {
    "imageUrl1": {"type": "string", "minLength": 1},
    "imageUrl2": {"type": "string", "minLength": 1}
  }
}`

const checkoutSchema = `{
  "type": "object",
  "required": ["orderId", "items"],
  "properties": {
    "orderId": {"type": "string", "minLength": 1},
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["title", "quantity", "unit_price"],
        "properties": {
          "title": {"type": "string"},
          "quantity": {"type": "integer", "exclusiveMinimum": 0},
          "unit_price": {"type": "number", "exclusiveMinimum": 0}
        }
      }
    },
    "customerEmail": {"type": "string", "format": "email"},
    "customerName": {"type": "string"}
  }
}`

const idTokenSchema = `{
  "type": "object",
  "required": ["idToken"],
  "properties": {
    "idToken": {"type": "string", "minLength": 1}
  }
}`

const wishlistAddSchema = `{
  "type": "object",
  "required": ["product_id"],
  "properties": {
    "product_id": {"type": "string", "minLength": 1},
    "variant_id": {"type": "string"}
  }
}`

// schemas holds the compiled request body schemas by name.
type schemas map[string]*jsonschema.Schema

func compileSchemas() (schemas, error) {
	sources := map[string]string{
		"face-detect":  faceDetectSchema,
		"face-verify":  faceVerifySchema,
		"checkout":     checkoutSchema,
		"id-token":     idTokenSchema,
		"wishlist-add": wishlistAddSchema,
	}
	out := make(schemas, len(sources))
	for name, src := range sources {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		c.AssertFormat = true
		url := fmt.Sprintf("https://vortx.dev/schemas/%s.schema.json", name)
		if err := c.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("schema %s load failed: %w", name, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("schema %s compile failed: %w", name, err)
		}
		out[name] = compiled
	}
	return out, nil
}

// decode reads a JSON body, validates it against the named schema and
// unmarshals it into dst.
func (s schemas) decode(body io.Reader, name string, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return apperr.Validation("body", "unreadable request body")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return apperr.Validation("body", "request body is required")
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return apperr.Validation("body", "malformed JSON")
	}

	if schema, ok := s[name]; ok {
		if err := schema.Validate(doc); err != nil {
			return schemaError(err)
		}
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Validation("body", err.Error())
	}
	return nil
}

func schemaError(err error) error {
	verr := &apperr.ValidationError{Message: "validation error"}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		verr.Details = []string{err.Error()}
		return verr
	}
	for _, cause := range leafCauses(ve) {
		loc := cause.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		verr.Details = append(verr.Details, loc+": "+cause.Message)
	}
	if len(verr.Details) == 0 {
		verr.Details = []string{ve.Message}
	}
	return verr
}

func leafCauses(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leafCauses(c)...)
	}
	return out
}
