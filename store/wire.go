package store

import (
	"fmt"

	"github.com/pevans/folio/content"
)

// SnapshotMessage is one push frame on a subscription websocket.
type SnapshotMessage struct {
	Items []content.Item `json:"items"`
	Error string         `json:"error,omitempty"`
}

// ListResponse is the body of GET /api/v1/collections/{path}/records.
type ListResponse struct {
	Items []content.Item `json:"items"`
	Total int            `json:"total"`
}

// CreateResponse is the body of POST /api/v1/collections/{path}/records.
type CreateResponse struct {
	ID string `json:"id"`
}

// ErrorResponse represents an error response from the store service.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is returned by the remote backend for non-success responses.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("store service returned %d %s: %s", e.Status, e.Code, e.Message)
}
