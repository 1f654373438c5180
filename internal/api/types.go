package api

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// UploadResponse is returned by POST /uploads.
type UploadResponse struct {
	URL string `json:"url"`
}

// DeleteResponse is returned by DELETE /files/{id}.
type DeleteResponse struct {
	ID string `json:"id"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
