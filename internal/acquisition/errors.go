package acquisition

import "errors"

var (
	// ErrDeviceUnavailable reports a denied or missing camera.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrDecodeFailure reports an uploaded or example image that cannot be decoded.
	ErrDecodeFailure = errors.New("image decode failed")
	// ErrSubmissionFailure reports a failed detection call.
	ErrSubmissionFailure = errors.New("detection submission failed")
	// ErrBusy is returned when a submission is already in flight.
	ErrBusy = errors.New("submission already in flight")
	// ErrWrongMode is returned for an action that the active mode does not offer.
	ErrWrongMode = errors.New("action not available in current mode")
	// ErrNotStreaming is returned when capturing without an open camera stream.
	ErrNotStreaming = errors.New("camera is not streaming")
	// ErrSuperseded is returned when a mode switch made the outcome irrelevant.
	ErrSuperseded = errors.New("superseded by mode switch")
	// ErrClosed is returned after the session has been torn down.
	ErrClosed = errors.New("session closed")
)

const (
	msgDeviceUnavailable = "Unable to access camera. Please check permissions."
	msgDecodeFailure     = "Error processing image"
	msgExampleFailure    = "Failed to load example image"
	msgSubmission        = "Detection failed"
)

// userMessenger is implemented by errors that carry a server-provided message.
type userMessenger interface {
	UserMessage() string
}

func submissionMessage(err error) string {
	var m userMessenger
	if errors.As(err, &m) && m.UserMessage() != "" {
		return m.UserMessage()
	}
	return msgSubmission
}
