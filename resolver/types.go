package resolver

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// recordTypes is the fixed set of query types the resolver accepts at its
// public boundary, per the type enumeration this package implements.
var recordTypes = map[string]uint16{
	"A":     dns.TypeA,
	"AAAA":  dns.TypeAAAA,
	"CNAME": dns.TypeCNAME,
	"MX":    dns.TypeMX,
	"NS":    dns.TypeNS,
}

// qtypeFor maps a record type name to its wire value. ok is false for
// anything outside A, AAAA, CNAME, MX, NS.
func qtypeFor(recordType string) (uint16, bool) {
	t, ok := recordTypes[strings.ToUpper(recordType)]
	return t, ok
}

func typeName(qtype uint16) string {
	switch qtype {
	case dns.TypeA:
		return "A"
	case dns.TypeAAAA:
		return "AAAA"
	case dns.TypeCNAME:
		return "CNAME"
	case dns.TypeMX:
		return "MX"
	case dns.TypeNS:
		return "NS"
	default:
		return dns.TypeToString[qtype]
	}
}

// canonicalName lowercases name and appends the trailing label separator if
// missing, matching the absolute form every cache key and comparison in this
// package assumes.
func canonicalName(name string) string {
	return strings.ToLower(dns.Fqdn(name))
}

// renderRR renders one resource record's rdata as the text form Answer
// uses: addresses in dotted/colon form, MX as "PRIO TARGET", CNAME/NS as a
// bare target name.
func renderRR(rr dns.RR) (string, bool) {
	switch v := rr.(type) {
	case *dns.A:
		return v.A.String(), true
	case *dns.AAAA:
		return v.AAAA.String(), true
	case *dns.CNAME:
		return v.Target, true
	case *dns.NS:
		return v.Ns, true
	case *dns.MX:
		return fmt.Sprintf("%d %s", v.Preference, v.Mx), true
	default:
		return "", false
	}
}
