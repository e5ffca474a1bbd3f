package capture

import "errors"

var (
	// ErrAuthorizationDenied means the camera or brightness capability was refused.
	ErrAuthorizationDenied = errors.New("capture: authorization denied")

	// ErrCaptureFailed means the shutter produced no usable photo.
	ErrCaptureFailed = errors.New("capture: shutter returned no photo")

	// ErrCaptureInProgress is returned when a capture is already running.
	ErrCaptureInProgress = errors.New("capture: capture already in progress")

	// ErrSessionComplete is returned when both photos are already present.
	ErrSessionComplete = errors.New("capture: session already complete")

	// ErrPrematureAssembly is returned by Assemble outside the complete state.
	ErrPrematureAssembly = errors.New("capture: assemble requires both photos")

	// ErrSubmitInProgress is returned while an upload is running.
	ErrSubmitInProgress = errors.New("capture: submit already in progress")

	// ErrUploadFailed wraps upload collaborator errors.
	ErrUploadFailed = errors.New("capture: upload failed")
)
