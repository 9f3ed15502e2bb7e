package resolver

import "github.com/miekg/dns"

type outcome int

const (
	outcomeFinal outcome = iota
	outcomeCNAME
	outcomeDelegation
	outcomeNXDomain
	outcomeFail
)

// classify implements the response taxonomy from the iteration step of the
// resolve loop: final answer, CNAME to follow, delegation to descend into,
// NXDOMAIN, or a failure RCODE to retry against the next server.
func classify(resp *dns.Msg, qname string, qtype uint16) outcome {
	if resp == nil {
		return outcomeFail
	}

	if resp.Rcode == dns.RcodeNameError {
		return outcomeNXDomain
	}
	if resp.Rcode != dns.RcodeSuccess {
		return outcomeFail
	}

	var cname *dns.CNAME
	matched := false
	for _, rr := range resp.Answer {
		if !equalFold(rr.Header().Name, qname) {
			continue
		}
		if rr.Header().Rrtype == qtype {
			matched = true
		}
		if c, ok := rr.(*dns.CNAME); ok && cname == nil {
			cname = c
		}
	}

	if matched {
		return outcomeFinal
	}
	if cname != nil {
		if qtype == dns.TypeCNAME {
			return outcomeFinal
		}
		return outcomeCNAME
	}

	for _, rr := range resp.Ns {
		if rr.Header().Rrtype == dns.TypeNS {
			return outcomeDelegation
		}
	}

	// NOERROR with an empty or unrelated answer and no delegation: a
	// dead end. NODATA is not cached as its own kind.
	return outcomeFail
}

func equalFold(a, b string) bool {
	return dns.CanonicalName(a) == dns.CanonicalName(b)
}

// answerRecords extracts the directly-matching records of qtype for qname
// from resp's Answer section, rendered as text, in wire order.
func answerRecords(resp *dns.Msg, qname string, qtype uint16) []string {
	var out []string
	for _, rr := range resp.Answer {
		if rr.Header().Rrtype != qtype || !equalFold(rr.Header().Name, qname) {
			continue
		}
		if v, ok := renderRR(rr); ok {
			out = append(out, v)
		}
	}
	return out
}

// minAnswerTTL returns the smallest TTL among resp's Answer records
// matching qname/qtype, used to decide how long a final answer may be
// cached. Returns 0 if there are none.
func minAnswerTTL(resp *dns.Msg, qname string, qtype uint16) uint32 {
	var min uint32
	first := true
	for _, rr := range resp.Answer {
		if rr.Header().Rrtype != qtype || !equalFold(rr.Header().Name, qname) {
			continue
		}
		ttl := rr.Header().Ttl
		if first || ttl < min {
			min = ttl
			first = false
		}
	}
	return min
}

func firstCNAME(resp *dns.Msg, qname string) (*dns.CNAME, bool) {
	for _, rr := range resp.Answer {
		if c, ok := rr.(*dns.CNAME); ok && equalFold(c.Header().Name, qname) {
			return c, true
		}
	}
	return nil, false
}
