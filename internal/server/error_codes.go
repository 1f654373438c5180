package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument  = 1000
	ErrCodeRequestTooLarge  = 1002
	ErrCodeInvalidID        = 1004
	ErrCodeMissingRequired  = 1009
	ErrCodeUnsupportedMedia = 1015
	ErrCodeUndecodableImage = 1016

	// Domain state (2xxx)
	ErrCodeBlobNotFound = 2001

	// Limits (3xxx)
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal      = 4001
	ErrCodeStoreFailure  = 4002
	ErrCodeStoreNotReady = 4006
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 404:
		return ErrCodeBlobNotFound
	case 413:
		return ErrCodeRequestTooLarge
	case 415:
		return ErrCodeUnsupportedMedia
	case 422:
		return ErrCodeUndecodableImage
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 503:
		return ErrCodeStoreNotReady
	default:
		return 0
	}
}
