package resolver

import "errors"

// Sentinel errors for the failure modes of a resolution. All of these
// are recovered at the Resolve boundary: the public method never returns
// an error, only a (possibly empty) answer list. They exist so internal
// callers and tests can dispatch with errors.Is.
var (
	// ErrNXDomain is returned internally when the final response of a
	// query chain is NXDOMAIN.
	ErrNXDomain = errors.New("recursor: NXDOMAIN response")

	// ErrServerFailure is returned when every candidate nameserver at a
	// delegation level returned a non-success, non-NXDOMAIN response (or
	// a SERVFAIL that could not be superseded) and no further working
	// set is available.
	ErrServerFailure = errors.New("recursor: server failure")

	// ErrAllServersFailed is returned when every candidate in the
	// working set timed out or failed at the transport level.
	ErrAllServersFailed = errors.New("recursor: all nameservers failed")

	// ErrDepthExceeded is returned when the depth counter (delegation
	// hops, CNAME chases, and nested glue lookups combined) reaches
	// MaxDepth.
	ErrDepthExceeded = errors.New("recursor: max recursion depth exceeded")

	// ErrLoopGuard is returned when a CNAME target has already been
	// seen once within the same resolve call.
	ErrLoopGuard = errors.New("recursor: loop guard triggered")

	// ErrUnsupportedType is returned when the caller asks for a record
	// type outside A, AAAA, CNAME, MX, NS.
	ErrUnsupportedType = errors.New("recursor: unsupported record type")

	// ErrNoNameservers is returned when the working nameserver set is
	// empty before a query could even be attempted.
	ErrNoNameservers = errors.New("recursor: no nameservers available")
)
