package api

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var openAPIDocument []byte

// requestSchema is the JSON request body contract of one operation.
type requestSchema struct {
	required bool
	schema   *openapi3.Schema
}

// contract is the loaded OpenAPI document with request schemas indexed by
// operation id.
type contract struct {
	doc      *openapi3.T
	json     []byte
	requests map[string]requestSchema
}

func loadContract(ctx context.Context) (*contract, error) {
	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("api: load openapi document: %w", err)
	}
	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return nil, fmt.Errorf("api: validate openapi document: %w", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("api: encode openapi document: %w", err)
	}

	c := &contract{doc: doc, json: raw, requests: make(map[string]requestSchema)}
	for _, item := range doc.Paths.Map() {
		if item == nil {
			continue
		}
		for _, op := range item.Operations() {
			if op == nil || op.OperationID == "" || op.RequestBody == nil || op.RequestBody.Value == nil {
				continue
			}
			media := op.RequestBody.Value.Content.Get("application/json")
			if media == nil || media.Schema == nil || media.Schema.Value == nil {
				continue
			}
			c.requests[op.OperationID] = requestSchema{
				required: op.RequestBody.Value.Required,
				schema:   media.Schema.Value,
			}
		}
	}
	return c, nil
}

// decode validates body against the request schema of operationID and then
// decodes it into target. An absent optional body decodes as {}.
func (c *contract) decode(operationID string, body []byte, target any) error {
	rs, ok := c.requests[operationID]
	if !ok {
		return fmt.Errorf("api: no request schema for %s", operationID)
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		if rs.required {
			return StatusError{Code: http.StatusBadRequest, Err: errors.New("request body is required")}
		}
		body = []byte("{}")
	}

	var generic any
	if err := json.Unmarshal(body, &generic); err != nil {
		return StatusError{Code: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON: %w", err)}
	}
	if err := rs.schema.VisitJSON(generic); err != nil {
		return StatusError{Code: http.StatusBadRequest, Err: fmt.Errorf("request does not match schema: %w", err)}
	}
	if err := json.Unmarshal(body, target); err != nil {
		return StatusError{Code: http.StatusBadRequest, Err: fmt.Errorf("decode request: %w", err)}
	}
	return nil
}
