// Package resolve asks a public resolver what it currently returns for a
// record, so users can see whether a change has propagated.
package resolve

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

type Result struct {
	Name       string   `json:"name"`
	Type       string   `json:"record_type"`
	Expected   string   `json:"expected"`
	Resolver   string   `json:"resolver"`
	Rcode      string   `json:"rcode"`
	Answers    []string `json:"answers"`
	Propagated bool     `json:"propagated"`
}

type Checker struct {
	client *dns.Client
	server string
}

func NewChecker(server string, timeout time.Duration) *Checker {
	return &Checker{
		client: &dns.Client{Net: "udp", Timeout: timeout},
		server: server,
	}
}

// Check queries name/recordType and reports whether expected is among the
// answers. A NXDOMAIN is not an error; it simply means not propagated.
func (c *Checker) Check(ctx context.Context, name, recordType, expected string) (*Result, error) {
	qtype, ok := dns.StringToType[strings.ToUpper(recordType)]
	if !ok {
		return nil, fmt.Errorf("unsupported record type %q", recordType)
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	in, _, err := c.client.ExchangeContext(ctx, m, c.server)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.server, err)
	}

	res := &Result{
		Name:     strings.TrimSuffix(dns.Fqdn(name), "."),
		Type:     dns.TypeToString[qtype],
		Expected: expected,
		Resolver: c.server,
		Rcode:    dns.RcodeToString[in.Rcode],
		Answers:  []string{},
	}
	for _, rr := range in.Answer {
		if rr.Header().Rrtype != qtype {
			continue
		}
		v := answerValue(rr)
		if v == "" {
			continue
		}
		res.Answers = append(res.Answers, v)
		if sameValue(qtype, v, expected) {
			res.Propagated = true
		}
	}
	return res, nil
}

func answerValue(rr dns.RR) string {
	switch v := rr.(type) {
	case *dns.A:
		return v.A.String()
	case *dns.AAAA:
		return v.AAAA.String()
	case *dns.CNAME:
		return strings.TrimSuffix(v.Target, ".")
	}
	return ""
}

func sameValue(qtype uint16, got, want string) bool {
	switch qtype {
	case dns.TypeA, dns.TypeAAAA:
		a, b := net.ParseIP(got), net.ParseIP(want)
		return a != nil && b != nil && a.Equal(b)
	default:
		return strings.EqualFold(strings.TrimSuffix(got, "."), strings.TrimSuffix(want, "."))
	}
}
