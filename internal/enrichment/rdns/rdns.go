// Package rdns resolves node hostnames through PTR lookups.
package rdns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"meshmap/internal/naming"
)

// Resolver sends PTR queries to Server (host:port). Without a server the
// system resolver is used.
type Resolver struct {
	Server  string
	Timeout time.Duration
}

// LookupAddr returns the PTR names of address as naming candidates.
func (r *Resolver) LookupAddr(ctx context.Context, address string) ([]naming.Candidate, error) {
	var names []string
	var err error
	if r == nil || strings.TrimSpace(r.Server) == "" {
		names, err = net.DefaultResolver.LookupAddr(ctx, address)
	} else {
		names, err = r.queryPTR(ctx, address)
	}
	if err != nil {
		return nil, err
	}

	out := make([]naming.Candidate, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(strings.TrimSuffix(raw, "."))
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, naming.Candidate{Name: name, Source: naming.SourceReverseDNS})
	}
	return out, nil
}

func (r *Resolver) queryPTR(ctx context.Context, address string) ([]string, error) {
	arpa, err := dns.ReverseAddr(address)
	if err != nil {
		return nil, err
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}

	m := new(dns.Msg)
	m.SetQuestion(arpa, dns.TypePTR)
	m.RecursionDesired = true

	c := &dns.Client{Net: "udp", Timeout: timeout}
	resp, _, err := c.ExchangeContext(ctx, m, r.Server)
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("ptr %s: %s", arpa, dns.RcodeToString[resp.Rcode])
	}

	var names []string
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			names = append(names, ptr.Ptr)
		}
	}
	return names, nil
}
