package resolver

import "github.com/miekg/dns"

// nextNameservers implements the glue-handling step: it collects NS target
// names from resp's Authority section, resolves each to an IPv4 address
// using an in-response glue record when present, and falls back to a
// nested A lookup (through the same resolve machinery, so it benefits from
// cache and the shared depth/seen budget) when no glue is attached.
func (r *Resolver) nextNameservers(ctx *resolveCtx, resp *dns.Msg) []string {
	var targets []string
	for _, rr := range resp.Ns {
		ns, ok := rr.(*dns.NS)
		if !ok {
			continue
		}
		targets = append(targets, ns.Ns)
	}
	if len(targets) == 0 {
		return nil
	}

	glue := map[string][]string{}
	for _, rr := range resp.Extra {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		name := dns.CanonicalName(a.Header().Name)
		glue[name] = append(glue[name], a.A.String())
	}

	var out []string
	for _, target := range targets {
		key := dns.CanonicalName(target)
		if addrs, ok := glue[key]; ok {
			out = append(out, addrs...)
			continue
		}

		if !ctx.consumeDepth() {
			continue
		}
		addrs, err := r.resolveAnswer(ctx, target, dns.TypeA)
		if err != nil || len(addrs) == 0 {
			continue
		}
		out = append(out, addrs...)
	}

	return out
}
