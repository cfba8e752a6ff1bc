// Package digerr defines the sentinel error taxonomy shared by every
// component of a dig node. Callers compare with errors.Is and wrap with
// fmt.Errorf("%w: ...") the same way the rest of the node does.
package digerr

import "errors"

var (
	// Boundary errors: input rejected before any semantic processing.
	ErrInvalidURN         = errors.New("invalid urn")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUnsupportedRequest = errors.New("unsupported request")

	// Semantic failures of an otherwise well-formed request.
	ErrStoreNotFound    = errors.New("store not found")
	ErrRangeOutOfBounds = errors.New("range out of bounds")
	ErrVersionMismatch  = errors.New("version mismatch")

	// Server-side backpressure.
	ErrRateLimited = errors.New("rate limited")

	// Connection-level failures.
	ErrTransportClosed   = errors.New("transport closed")
	ErrEncryptionRequired = errors.New("encryption required")

	// Reachability failures during acquisition.
	ErrResolutionUnavailable = errors.New("resolution unavailable")
	ErrDialTimeout           = errors.New("dial timeout")
	ErrRelayUnavailable      = errors.New("relay unavailable")

	// Orchestrator-level failures.
	ErrDownloadFailed   = errors.New("download failed")
	ErrIntegrityFailure = errors.New("integrity failure")
)

// Kind reports the sentinel a wrapped error chains to, or ok=false if it
// matches none of the taxonomy above. Useful at the protocol boundary where
// a wire error message must be chosen from the error a handler returned.
func Kind(err error) (sentinel error, ok bool) {
	for _, s := range []error{
		ErrInvalidURN, ErrInvalidRequest, ErrUnsupportedRequest,
		ErrStoreNotFound, ErrRangeOutOfBounds, ErrVersionMismatch,
		ErrRateLimited, ErrTransportClosed, ErrEncryptionRequired,
		ErrResolutionUnavailable, ErrDialTimeout, ErrRelayUnavailable,
		ErrDownloadFailed, ErrIntegrityFailure,
	} {
		if errors.Is(err, s) {
			return s, true
		}
	}
	return nil, false
}
