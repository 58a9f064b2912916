package flow

import "errors"

var (
	// ErrMalformed is returned for method bodies that cannot be analyzed:
	// bad branch targets, inconsistent try ranges, code falling off the end
	// or too many probes. No partial graph is produced.
	ErrMalformed = errors.New("malformed method")

	// ErrFrameInvariant signals that instrumentation would change the stack
	// or local shape at a frame boundary. It indicates a rewriter bug rather
	// than bad input.
	ErrFrameInvariant = errors.New("frame invariant violated")
)

// DefaultMaxProbes bounds the number of probes of one class.
const DefaultMaxProbes = 65535

// Options configures graph building and probe placement.
type Options struct {
	MaxProbes int
}

func (o Options) maxProbes() int {
	if o.MaxProbes <= 0 {
		return DefaultMaxProbes
	}
	return o.MaxProbes
}
