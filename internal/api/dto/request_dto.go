package dto

// CreateRequest is the POST /api/v1/requests body: the migration request
// as submitted by the client.
type CreateRequest struct {
	DID     string `json:"did" binding:"required"`
	Chain   int64  `json:"chain" binding:"required"`
	OrgIDVC string `json:"orgIdVc" binding:"required"`
}

// UploadURIRequest is the POST /api/v1/files/uri body.
type UploadURIRequest struct {
	URI string `json:"uri" binding:"required"`
}

// UploadedFile is the response of both file-upload endpoints.
type UploadedFile struct {
	URL string `json:"url"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Message string `json:"message"`
}
