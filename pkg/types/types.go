// Package types holds the JSON shapes shared by the HTTP API and its clients.
package types

// Common response types

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

// CreatePreviewRequest is the body of POST /v1/previews. Both fields are
// optional.
type CreatePreviewRequest struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

// CreatePreviewResponse is returned once a preview is open.
type CreatePreviewResponse struct {
	ID string `json:"id"`
	// ViewURL is where the hosted view attaches its websocket.
	ViewURL string `json:"viewUrl"`
}

// RevealRequest is the body of POST /v1/previews/:id/reveal.
type RevealRequest struct {
	Target string `json:"target"`
}
