package chunker

import "errors"

var (
	// ErrConfiguration marks invalid construction parameters, including an
	// unavailable embedding provider. Fix the configuration; do not retry.
	ErrConfiguration = errors.New("chunker: invalid configuration")

	// ErrEmbedding marks a failed, cancelled or malformed embedding call.
	// The chunk call produced no output and may be retried.
	ErrEmbedding = errors.New("chunker: embedding failed")

	// ErrInternalInvariant marks empty or non-contiguous groups reaching the
	// assembler. It is a defect, never a user input problem.
	ErrInternalInvariant = errors.New("chunker: internal invariant violated")
)

// IsRetryable reports whether err came from a transient embedding failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEmbedding)
}
