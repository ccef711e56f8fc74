package handlers

// Common error message constants shared across handlers
const (
	ErrMsgInvalidRequestBody = "Invalid request body"
	ErrMsgUnauthorized       = "Unauthorized"
	ErrMsgInternal           = "Internal server error"
	ErrMsgInvalidQuestionID  = "Invalid question ID"
	ErrMsgInvalidAnswerID    = "Invalid answer ID"
	ErrMsgInvalidReviewID    = "Invalid review ID"
)
