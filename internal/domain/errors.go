package domain

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")

	ErrServiceInactive    = errors.New("service is inactive")
	ErrNoActiveProvider   = errors.New("no active provider")
	ErrUnsupportedChannel = errors.New("unsupported channel")
	ErrUnknownStatus      = errors.New("unknown provider status")
	ErrInvalidPayload     = errors.New("invalid payload")
)

// IsFatal reports whether err must not be retried by the task queue.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{
		ErrServiceInactive,
		ErrNoActiveProvider,
		ErrUnsupportedChannel,
		ErrUnknownStatus,
		ErrInvalidPayload,
		ErrValidation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
