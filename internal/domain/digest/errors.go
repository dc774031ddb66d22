package digest

import "errors"

// Sentinel kinds for digest errors.
var (
	// ErrDataInconsistency marks an event whose actor, comment or post is gone.
	ErrDataInconsistency = errors.New("data inconsistency")
	// ErrEmptyDigest marks a recipient that reached aggregation with nothing to send.
	ErrEmptyDigest = errors.New("empty digest")
)
