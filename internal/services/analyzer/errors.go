package analyzer

import "errors"

// Every failed analysis wraps exactly one of these.
var (
	ErrModelUnavailable = errors.New("model is not loaded")
	ErrDecode           = errors.New("invalid image")
	ErrDuplicate        = errors.New("potential duplicate image detected")
	ErrInference        = errors.New("prediction error")
	ErrInferenceTimeout = errors.New("prediction timed out")
	ErrBackendFault     = errors.New("detection backend fault")
	ErrRender           = errors.New("failed to render result")
)
