package errors

// Error codes for standardized error responses
const (
	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMissingField     = "missing_field"

	// Resource errors
	ErrCodeNotFound        = "not_found"
	ErrCodeConflict        = "conflict"
	ErrCodeUnknownProfile  = "unknown_profile"
	ErrCodeSessionNotFound = "session_not_found"
	ErrCodeSessionActive   = "session_active"
	ErrCodeResultNotFound  = "result_not_found"

	// Exam intent rejections
	ErrCodeAlreadyStarted = "already_started"
	ErrCodeNotStarted     = "not_started"
	ErrCodeExamCompleted  = "exam_completed"
	ErrCodeStaleIntent    = "stale_intent"
	ErrCodeOutOfBounds    = "out_of_bounds"
	ErrCodeSessionClosed  = "session_closed"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"
	ErrCodeMissingCandidate   = "missing_candidate"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeTimeout            = "timeout"
)
