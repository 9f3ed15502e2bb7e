package resolver

import (
	"bytes"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// Trace records every exchange one resolve call made, for diagnostics and
// tests. It is a flat, depth-tagged log rather than a tree: a resolve
// walks delegations and chases CNAMEs in a loop, so there is no call
// stack to hang a tree from. Queries nested through glue lookups or
// CNAME chases simply carry a higher Depth.
type Trace struct {
	Entries []*TraceEntry
}

// TraceEntry is one query/response pair, or one transport failure, made
// while answering a single top-level resolve call.
type TraceEntry struct {
	Depth    int
	Server   string
	Question dns.Question
	Response *dns.Msg
	RTT      time.Duration
	Err      error
}

func (t *Trace) record(e *TraceEntry) {
	if t == nil {
		return
	}
	t.Entries = append(t.Entries, e)
}

// Dump renders the trace for human consumption; the format may change
// between releases without notice.
func (t *Trace) Dump() string {
	if t == nil {
		return ""
	}

	buf := &bytes.Buffer{}
	for _, e := range t.Entries {
		indent := ""
		for i := 0; i < e.Depth; i++ {
			indent += "  "
		}
		fmt.Fprintf(buf, "%s? %s %s -> %s\n", indent, e.Question.Name, typeName(e.Question.Qtype), e.Server)
		switch {
		case e.Err != nil:
			fmt.Fprintf(buf, "%s X %v\n", indent, e.Err)
		case e.Response != nil:
			fmt.Fprintf(buf, "%s! rcode=%s answers=%d (%s)\n", indent, dns.RcodeToString[e.Response.Rcode], len(e.Response.Answer), e.RTT)
		}
	}
	return buf.String()
}
