// Package enrichment fills in node metadata the topology payload left
// empty, using reverse DNS and SNMP.
package enrichment

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"meshmap/internal/enrichment/snmp"
	"meshmap/internal/naming"
	"meshmap/internal/topology"
)

// NameResolver is satisfied by *rdns.Resolver.
type NameResolver interface {
	LookupAddr(ctx context.Context, address string) ([]naming.Candidate, error)
}

// SystemReader is satisfied by *snmp.Client.
type SystemReader interface {
	GetSystem(ctx context.Context, target snmp.Target) (snmp.SystemInfo, error)
}

// Pipeline enriches snapshots. Either lookup may be nil.
type Pipeline struct {
	Names  NameResolver
	System SystemReader
	// Workers bounds concurrent lookups. Defaults to 8.
	Workers int
	// MaxTargets caps how many nodes are looked up per snapshot. Zero means
	// no cap.
	MaxTargets    int
	LookupTimeout time.Duration
	Log           zerolog.Logger
}

type found struct {
	hostname string
	nick     string
}

// Enrich returns a copy of snap with empty hostnames and owners filled in
// where a lookup produced a usable value.
func (p *Pipeline) Enrich(ctx context.Context, snap *topology.Snapshot) *topology.Snapshot {
	if p == nil || (p.Names == nil && p.System == nil) {
		return snap
	}

	var targets []string
	for _, n := range snap.Nodes() {
		if n.Hostname != "" && n.Nick != "" {
			continue
		}
		if _, err := netip.ParseAddr(n.Address); err != nil {
			continue
		}
		targets = append(targets, n.Address)
	}
	if p.MaxTargets > 0 && len(targets) > p.MaxTargets {
		targets = targets[:p.MaxTargets]
	}
	if len(targets) == 0 {
		return snap
	}

	results := p.lookupAll(ctx, targets)
	p.Log.Info().Int("targets", len(targets)).Int("enriched", len(results)).Msg("enrichment finished")
	if len(results) == 0 {
		return snap
	}
	return snap.Rebuild(func(n topology.Node) topology.Node {
		r, ok := results[n.Address]
		if !ok {
			return n
		}
		if n.Hostname == "" {
			n.Hostname = r.hostname
		}
		if n.Nick == "" {
			n.Nick = r.nick
		}
		return n
	})
}

func (p *Pipeline) lookupAll(ctx context.Context, targets []string) map[string]found {
	workers := p.Workers
	if workers <= 0 {
		workers = 8
	}

	var mu sync.Mutex
	results := make(map[string]found)
	jobs := make(chan string)
	wg := sync.WaitGroup{}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range jobs {
				if ctx.Err() != nil {
					return
				}
				if r, ok := p.lookup(ctx, addr); ok {
					mu.Lock()
					results[addr] = r
					mu.Unlock()
				}
			}
		}()
	}

	for _, addr := range targets {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return results
		case jobs <- addr:
		}
	}
	close(jobs)
	wg.Wait()
	return results
}

func (p *Pipeline) lookup(ctx context.Context, addr string) (found, bool) {
	timeout := p.LookupTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	var cands []naming.Candidate
	var out found

	if p.Names != nil {
		nameCtx, cancel := context.WithTimeout(ctx, timeout)
		cs, err := p.Names.LookupAddr(nameCtx, addr)
		cancel()
		if err != nil {
			p.Log.Debug().Err(err).Str("ip", addr).Msg("reverse lookup failed")
		}
		cands = append(cands, cs...)
	}

	if p.System != nil {
		sysCtx, cancel := context.WithTimeout(ctx, timeout)
		sys, err := p.System.GetSystem(sysCtx, snmp.Target{Address: addr})
		cancel()
		if err != nil {
			p.Log.Debug().Err(err).Str("ip", addr).Msg("snmp system query failed")
		} else {
			if sys.SysName != nil {
				cands = append(cands, naming.Candidate{Name: *sys.SysName, Source: naming.SourceSNMP})
			}
			if sys.SysContact != nil {
				out.nick = *sys.SysContact
			}
		}
	}

	if name, ok := naming.ChooseBestDisplayName(cands); ok {
		out.hostname = name
	}
	return out, out.hostname != "" || out.nick != ""
}
