// Package resolver implements the iterative descent engine: cache lookup,
// delegation walk with glue handling, and CNAME chasing, driven against
// the cache, tracker, and transport packages.
package resolver

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/netresolve/recursor/cache"
	"github.com/netresolve/recursor/tracker"
	"github.com/netresolve/recursor/transport"
)

// Defaults for the descent loop. Exported so a caller assembling a
// Resolver (or a test) can see them without reaching into unexported
// fields; WithTimeout and WithBudget override the last two.
const (
	MaxDepth        = 16
	MaxRetries      = 2
	ExchangeTimeout = 3 * time.Second
	ResolveBudget   = 10 * time.Second
)

// Resolver drives the iterative descent loop described in this package's
// doc comment. The zero value is not usable; construct with New.
type Resolver struct {
	cache   *cache.Cache
	tracker *tracker.Tracker

	maxDepth    int
	maxRetries  int
	timeout     time.Duration
	budget      time.Duration
	negativeTTL time.Duration
	rootHints   []string
	serverPort  string

	sf     singleflight.Group
	logger *logrus.Logger
	hooks  Hooks
}

// Hooks let the wiring layer observe cache, tracker, and resolve events
// without the core depending on a metrics library directly. Every field
// is optional; a nil func is simply not called.
type Hooks struct {
	// CacheHit/CacheMiss fire once per cache lookup, kind being
	// "positive", "negative", or "delegation".
	CacheHit  func(kind string)
	CacheMiss func(kind string)

	// ServerSelected fires once per nameserver Select returns, status
	// being the tracker's Status.String() at selection time.
	ServerSelected func(status string)

	// ServerFailed fires once per failed exchange, kind being
	// "timeout", "iofail", or "servfail".
	ServerFailed func(kind string)

	// ResolveDone fires once per top-level Resolve call, outcome being
	// "ok", "empty", or "error".
	ResolveDone func(outcome string, elapsed time.Duration, depth int)
}

func (h Hooks) cacheHit(kind string) {
	if h.CacheHit != nil {
		h.CacheHit(kind)
	}
}

func (h Hooks) cacheMiss(kind string) {
	if h.CacheMiss != nil {
		h.CacheMiss(kind)
	}
}

func (h Hooks) serverSelected(status string) {
	if h.ServerSelected != nil {
		h.ServerSelected(status)
	}
}

func (h Hooks) serverFailed(kind string) {
	if h.ServerFailed != nil {
		h.ServerFailed(kind)
	}
}

func (h Hooks) resolveDone(outcome string, elapsed time.Duration, depth int) {
	if h.ResolveDone != nil {
		h.ResolveDone(outcome, elapsed, depth)
	}
}

// Option configures a Resolver at construction time.
type Option func(*Resolver)

// WithTimeout overrides the per-exchange timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithBudget overrides the wall-clock budget for one top-level resolve.
func WithBudget(d time.Duration) Option {
	return func(r *Resolver) { r.budget = d }
}

// WithLogger attaches a structured logger; nil disables logging.
func WithLogger(l *logrus.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithHooks attaches metrics/observability callbacks.
func WithHooks(h Hooks) Option {
	return func(r *Resolver) { r.hooks = h }
}

// withRootHints overrides the compiled-in root server list. Unexported: it
// exists for tests that stand up a fake delegation chain rather than
// talking to the real root servers.
func withRootHints(addrs []string) Option {
	return func(r *Resolver) { r.rootHints = addrs }
}

// withServerPort overrides the port joined onto every nameserver address
// before an exchange. Unexported: production always talks to port 53; this
// exists so tests can stand up zone servers on an unprivileged port.
func withServerPort(port string) Option {
	return func(r *Resolver) { r.serverPort = port }
}

// New builds a Resolver over c and t, which it does not own the lifecycle
// of: both are process-wide singletons constructed and closed by the
// caller (see cmd/recursorsd).
func New(c *cache.Cache, t *tracker.Tracker, opts ...Option) *Resolver {
	r := &Resolver{
		cache:       c,
		tracker:     t,
		maxDepth:    MaxDepth,
		maxRetries:  MaxRetries,
		timeout:     ExchangeTimeout,
		budget:      ResolveBudget,
		negativeTTL: cache.DefaultNegativeTTL,
		rootHints:   copyRootHints(),
		serverPort:  "53",
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// resolveCtx carries the state shared across one top-level Resolve call:
// the depth budget, the CNAME loop guard, a deadline, and a trace. It is
// passed by pointer through every nested resolveAnswer/nextNameservers
// call so that glue lookups and CNAME chases draw from the same budget as
// the delegation walk that triggered them.
type resolveCtx struct {
	ctx       context.Context
	depth     int
	maxDepth  int
	seenCNAME map[string]bool
	trace     *Trace
}

func (c *resolveCtx) consumeDepth() bool {
	if c.depth >= c.maxDepth {
		return false
	}
	c.depth++
	return true
}

// Resolve is the public boundary: it never returns an error, only a
// possibly-empty ordered list of rendered records. An empty list means
// NXDOMAIN, an unsupported type, all candidate nameservers failing, or the
// wall-clock budget running out.
func (r *Resolver) Resolve(ctx context.Context, domain string, recordType string) []string {
	out, _ := r.ResolveTrace(ctx, domain, recordType)
	return out
}

// ResolveTrace behaves like Resolve but also returns the trace of every
// exchange attempted, for diagnostics and tests.
func (r *Resolver) ResolveTrace(ctx context.Context, domain string, recordType string) ([]string, *Trace) {
	qtype, ok := qtypeFor(recordType)
	if !ok {
		if r.logger != nil {
			r.logger.WithError(ErrUnsupportedType).WithField("type", recordType).Debug("resolve failed")
		}
		r.hooks.resolveDone("error", 0, 0)
		return nil, nil
	}

	name := canonicalName(domain)

	budgetCtx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	start := time.Now()
	var depth int

	// singleflight collapses identical concurrent misses onto one
	// in-flight resolution; every caller gets the same answer back.
	key := name + ":" + typeName(qtype)
	v, err, _ := r.sf.Do(key, func() (interface{}, error) {
		rc := &resolveCtx{
			ctx:       budgetCtx,
			maxDepth:  r.maxDepth,
			seenCNAME: map[string]bool{},
			trace:     &Trace{},
		}
		answer, rerr := r.resolveAnswer(rc, name, qtype)
		depth = rc.depth
		return resolveResult{answer: answer, trace: rc.trace}, rerr
	})
	if err != nil {
		if r.logger != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{"name": name, "type": typeName(qtype)}).Debug("resolve failed")
		}
	}

	res, _ := v.(resolveResult)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case len(res.answer) == 0:
		outcome = "empty"
	}
	r.hooks.resolveDone(outcome, time.Since(start), depth)

	return res.answer, res.trace
}

type resolveResult struct {
	answer []string
	trace  *Trace
}

// resolveAnswer resolves one (name, qtype) pair: cache lookup, then the
// iterative delegation walk, then CNAME chasing as required by qtype.
func (r *Resolver) resolveAnswer(rc *resolveCtx, name string, qtype uint16) ([]string, error) {
	if recs, ok := r.cache.Get(name, typeName(qtype)); ok {
		r.hooks.cacheHit("positive")
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"name": name, "type": typeName(qtype)}).Debug("cache hit")
		}
		return recs, nil
	}
	r.hooks.cacheMiss("positive")

	if r.cache.IsNegative(name, typeName(qtype)) {
		r.hooks.cacheHit("negative")
		return nil, ErrNXDomain
	}
	r.hooks.cacheMiss("negative")

	resp, err := r.iterate(rc, name, qtype)
	if err != nil {
		if err == ErrNXDomain {
			r.cache.PutNegative(name, typeName(qtype), r.negativeTTL)
		}
		return nil, err
	}

	if matched := answerRecords(resp, name, qtype); len(matched) > 0 {
		ttl := time.Duration(minAnswerTTL(resp, name, qtype)) * time.Second
		r.cache.Put(name, typeName(qtype), matched, ttl)
		return matched, nil
	}

	if qtype != dns.TypeCNAME {
		if c, ok := firstCNAME(resp, name); ok {
			return r.chaseCNAME(rc, name, qtype, c)
		}
	}

	return nil, ErrServerFailure
}

// chaseCNAME implements the CNAME-following step: the target is recorded
// in the per-resolve seen set, resolved recursively as an A query (non-A
// queries return the CNAME target verbatim without chasing, handled by the
// qtype check at the top of this function), and
// the resulting addresses are appended after any directly-matching
// records (there are none here, since classify only reaches this path
// when the Answer section had no qtype match).
func (r *Resolver) chaseCNAME(rc *resolveCtx, origin string, qtype uint16, c *dns.CNAME) ([]string, error) {
	target := canonicalName(c.Target)

	if qtype != dns.TypeA {
		return []string{c.Target}, nil
	}

	if rc.seenCNAME[target] {
		return []string{c.Target}, ErrLoopGuard
	}
	rc.seenCNAME[target] = true

	if !rc.consumeDepth() {
		return []string{c.Target}, ErrDepthExceeded
	}

	addrs, err := r.resolveAnswer(rc, target, dns.TypeA)
	if err != nil || len(addrs) == 0 {
		return []string{c.Target}, nil
	}
	return addrs, nil
}

// iterate walks the delegation chain down from the most specific cached
// delegation enclosing name (or the root hints), returning the first response that
// classifies as final, CNAME, or NXDOMAIN. A delegation response advances
// the loop one level deeper; anything else terminates it.
func (r *Resolver) iterate(rc *resolveCtx, name string, qtype uint16) (*dns.Msg, error) {
	nameservers := r.bestKnownNameservers(name)

	for len(nameservers) > 0 {
		if !rc.consumeDepth() {
			return nil, ErrDepthExceeded
		}

		resp, err := r.queryLevel(rc, name, qtype, nameservers)
		if err != nil {
			return nil, err
		}

		switch classify(resp, name, qtype) {
		case outcomeFinal, outcomeCNAME:
			return resp, nil
		case outcomeNXDomain:
			return resp, ErrNXDomain
		case outcomeDelegation:
			next := r.nextNameservers(rc, resp)
			if len(next) == 0 {
				return nil, ErrServerFailure
			}
			if zone, ok := delegationZone(resp); ok {
				r.cache.PutDelegation(zone, next, delegationTTL(resp))
			}
			nameservers = next
		default:
			return nil, ErrServerFailure
		}
	}

	return nil, ErrNoNameservers
}

// bestKnownNameservers returns the cached delegation set for the most
// specific zone enclosing name, walking from name itself up to the root,
// falling back to the root hints when nothing is cached.
func (r *Resolver) bestKnownNameservers(name string) []string {
	labels := dns.SplitDomainName(name)
	for i := range labels {
		zone := dns.Fqdn(joinLabels(labels[i:]))
		if cached, ok := r.cache.GetDelegation(zone); ok {
			r.hooks.cacheHit("delegation")
			return cached
		}
	}
	r.hooks.cacheMiss("delegation")
	return append([]string(nil), r.rootHints...)
}

func joinLabels(labels []string) string {
	out := ""
	for i, l := range labels {
		if i > 0 {
			out += "."
		}
		out += l
	}
	return out
}

func delegationZone(resp *dns.Msg) (string, bool) {
	for _, rr := range resp.Ns {
		if ns, ok := rr.(*dns.NS); ok {
			return dns.CanonicalName(ns.Header().Name), true
		}
	}
	return "", false
}

func delegationTTL(resp *dns.Msg) time.Duration {
	var min uint32
	first := true
	for _, rr := range resp.Ns {
		if rr.Header().Rrtype != dns.TypeNS {
			continue
		}
		if first || rr.Header().Ttl < min {
			min = rr.Header().Ttl
			first = false
		}
	}
	return time.Duration(min) * time.Second
}

// queryLevel implements the retry policy for one delegation level: up to
// maxRetries rounds, each re-selecting from the tracker, returning on the
// first parseable response (including NXDOMAIN) and retaining a SERVFAIL
// as a fallback if nothing better arrives before the candidate set is
// exhausted.
func (r *Resolver) queryLevel(rc *resolveCtx, name string, qtype uint16, nameservers []string) (*dns.Msg, error) {
	var lastResponse *dns.Msg

	for round := 0; round < r.maxRetries; round++ {
		if round > 0 {
			if err := sleepCtx(rc.ctx, time.Duration(round)*100*time.Millisecond); err != nil {
				break
			}
		}

		selected := r.tracker.Select(nameservers)
		if len(selected) == 0 {
			break
		}

		for _, ns := range selected {
			if snap, ok := r.tracker.Snapshot(ns); ok {
				r.hooks.serverSelected(snap.Status.String())
			}

			r.tracker.StartQuery(ns)
			res, err := transport.Exchange(rc.ctx, r.addrFor(ns), name, qtype, r.timeout)
			r.tracker.EndQuery(ns)

			rc.trace.record(&TraceEntry{
				Depth:    rc.depth,
				Server:   ns,
				Question: dns.Question{Name: dns.Fqdn(name), Qtype: qtype, Qclass: dns.ClassINET},
				Response: res.Response,
				RTT:      res.RTT,
				Err:      err,
			})

			if err != nil {
				before, _ := r.tracker.Snapshot(ns)
				r.tracker.RecordFailure(ns)
				after, _ := r.tracker.Snapshot(ns)
				r.recordFailureObservability(ns, err, before, after)
				continue
			}

			r.tracker.RecordSuccess(ns, res.RTT)

			if res.Response.Rcode == dns.RcodeServerFailure {
				r.hooks.serverFailed("servfail")
				if r.logger != nil {
					r.logger.WithFields(logrus.Fields{"server": ns, "name": name}).Warn("server returned SERVFAIL, retrying")
				}
				lastResponse = res.Response
				continue
			}

			return res.Response, nil
		}
	}

	if lastResponse != nil {
		return lastResponse, nil
	}
	return nil, ErrAllServersFailed
}

// addrFor joins the configured server port onto a bare nameserver IP. The
// tracker and trace continue to key on the bare IP; only the wire address
// handed to Transport carries the port.
func (r *Resolver) addrFor(ip string) string {
	return net.JoinHostPort(ip, r.serverPort)
}

// recordFailureObservability reports a failed exchange through the
// hooks and logs a Warn (this round will be retried at the next
// candidate or round) plus a Debug on any tracker status transition
// (e.g. AVAILABLE -> NEGATIVE once MaxFailures is reached).
func (r *Resolver) recordFailureObservability(ns string, err error, before, after tracker.Snapshot) {
	kind := "iofail"
	var terr *transport.Error
	if errors.As(err, &terr) && terr.Kind == transport.KindTimeout {
		kind = "timeout"
	}
	r.hooks.serverFailed(kind)

	if r.logger == nil {
		return
	}
	r.logger.WithFields(logrus.Fields{"server": ns, "kind": kind, "error": err}).Warn("exchange failed, retrying")
	if before.Status != after.Status {
		r.logger.WithFields(logrus.Fields{"server": ns, "from": before.Status.String(), "to": after.Status.String()}).Debug("nameserver status transition")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
