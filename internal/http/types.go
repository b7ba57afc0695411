package http

import "github.com/fyrsmithlabs/paperqa/internal/document"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`
	// Section restricts retrieval; empty or "all" searches every section.
	Section string `json:"section"`
}

// ContextDoc is one evidence chunk in an answer.
type ContextDoc struct {
	Text     string            `json:"text"`
	Metadata document.Metadata `json:"metadata"`
}

// AskResponse is the response body for POST /api/v1/ask.
type AskResponse struct {
	Answer           string       `json:"answer"`
	ContextDocs      []ContextDoc `json:"context_docs"`
	FormattedContext string       `json:"formatted_context"`
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
	// Stage is set when a query failed inside the pipeline.
	Stage string `json:"stage,omitempty"`
}

// DocumentStatusResponse is the response body for GET /api/v1/documents/status.
type DocumentStatusResponse struct {
	Pending   int `json:"pending"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	// Chunks is the number of indexed chunks, or -1 when unknown.
	Chunks int `json:"chunks"`
}

// UploadResponse is the response body for POST /api/v1/documents.
type UploadResponse struct {
	File   string `json:"file"`
	Status string `json:"status"`
}
