// Package transport performs a single-shot DNS exchange with one
// authoritative nameserver over UDP, advertising an EDNS0 buffer size
// and reporting the measured round-trip time.
package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/miekg/dns"
)

// DefaultTimeout is the per-exchange timeout used when the caller does
// not specify one.
const DefaultTimeout = 3 * time.Second

// ednsBufferSize is the UDP payload size advertised in the OPT
// pseudo-record added to every outgoing query, per RFC 6891.
const ednsBufferSize = 4096

// Kind classifies why an exchange failed.
type Kind int

const (
	// KindTimeout means no response arrived within the per-exchange
	// budget.
	KindTimeout Kind = iota
	// KindIOFail means a socket error or malformed response packet.
	KindIOFail
)

// Error wraps a transport failure with its Kind so callers can dispatch
// on it without string-matching.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Result is the outcome of one exchange.
type Result struct {
	Response *dns.Msg
	RTT      time.Duration
}

// Exchange sends one UDP query for (qname, qtype) to serverAddr (an IP
// address, port optional and defaulting to 53) and waits up to timeout
// (DefaultTimeout if zero or negative) for a response.
//
// The query is iterative (RD=0) and carries an EDNS0 OPT record
// advertising a 4096-byte UDP payload. A truncated (TC=1) response is
// returned as-is; this package does not retry over TCP.
func Exchange(ctx context.Context, serverAddr string, qname string, qtype uint16, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	addr := serverAddr
	if _, _, err := net.SplitHostPort(serverAddr); err != nil {
		addr = net.JoinHostPort(serverAddr, "53")
	}

	m := new(dns.Msg)
	m.Id = dns.Id()
	m.RecursionDesired = false
	m.Question = []dns.Question{{
		Name:   dns.Fqdn(qname),
		Qtype:  qtype,
		Qclass: dns.ClassINET,
	}}
	m.SetEdns0(ednsBufferSize, false)

	c := &dns.Client{
		Net:     "udp",
		Timeout: timeout,
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, rtt, err := c.ExchangeContext(ctx, m, addr)
	if err != nil {
		return Result{RTT: rtt}, classifyError(err)
	}

	return Result{Response: resp, RTT: rtt}, nil
}

func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindIOFail, Err: err}
}
