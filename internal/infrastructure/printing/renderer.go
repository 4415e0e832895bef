package printing

// RenderError represents a failure of the PDF backend or of an artifact store
type RenderError struct {
	Code    string
	Message string
	Cause   error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// Error codes for rendering and storage failures
const (
	ErrCodeRenderFailed     = "RENDER_FAILED"
	ErrCodeInvalidConfig    = "INVALID_RENDER_CONFIG"
	ErrCodeInvalidPaperSize = "INVALID_PAPER_SIZE"
	ErrCodeStorageFailed    = "STORAGE_FAILED"
)

// NewRenderError creates a new RenderError
func NewRenderError(code, message string, cause error) *RenderError {
	return &RenderError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
