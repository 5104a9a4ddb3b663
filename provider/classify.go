package provider

import (
	"fmt"

	"github.com/Runetap54/edit-stream-manager-sub000/apperrors"
)

// Classify maps a provider HTTP status to the stable error taxonomy.
// status 0 means the call never produced a response (transport failure).
func Classify(status int) string {
	switch {
	case status == 0:
		return apperrors.CodeNetwork
	case status == 403:
		return apperrors.CodeAuth
	case status == 429:
		return apperrors.CodeQuotaExceeded
	case status == 400:
		return apperrors.CodeValidation
	case status >= 500:
		return apperrors.CodeServer
	default:
		return apperrors.CodeAPI
	}
}

// Retryable reports whether a failure with this code is worth another
// attempt. Only 5xx and transport failures qualify; every 4xx signals a
// request that will not succeed on resubmission.
func Retryable(code string) bool {
	return code == apperrors.CodeServer || code == apperrors.CodeNetwork
}

// userMessage picks the client-facing message per code. Validation
// errors echo the upstream detail when present; everything else gets a
// fixed message so raw provider text never leaks.
func userMessage(code, upstreamDetail string) string {
	switch code {
	case apperrors.CodeAuth:
		return "video provider rejected our credentials; check service configuration"
	case apperrors.CodeQuotaExceeded:
		return "video provider quota exceeded; try again later"
	case apperrors.CodeValidation:
		if upstreamDetail != "" {
			return fmt.Sprintf("video provider rejected the request: %s", upstreamDetail)
		}
		return "video provider rejected the request"
	case apperrors.CodeServer:
		return "video provider is unavailable"
	case apperrors.CodeNetwork:
		return "could not reach the video provider"
	default:
		return "video provider returned an unexpected response"
	}
}
