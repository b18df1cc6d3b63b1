// Package target parses target specifiers and enumerates them into
// concrete IPv4 addresses. Supported specifier forms are single IPs,
// hostnames, CIDR blocks, and inclusive dashed ranges. Enumeration is
// lazy, restartable, preserves specifier order, and never deduplicates
// across specifiers.
package target

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/anstrom/netreach/internal/errors"
	"github.com/anstrom/netreach/internal/logging"
)

// Kind identifies the syntactic form of a target specifier.
type Kind string

const (
	KindIP       Kind = "ip"
	KindHostname Kind = "hostname"
	KindCIDR     Kind = "cidr"
	KindRange    Kind = "range"
)

// Address is a single enumerated scan target. Hostname is set when the
// address came from resolving a hostname specifier.
type Address struct {
	IP       net.IP
	Hostname string
}

// Display returns the address formatted for reports: "hostname (ip)"
// when a hostname is known, the bare IP otherwise.
func (a Address) Display() string {
	if a.Hostname != "" {
		return fmt.Sprintf("%s (%s)", a.Hostname, a.IP.String())
	}
	return a.IP.String()
}

// Spec is a parsed target specifier.
type Spec struct {
	Raw  string
	Kind Kind

	ip   net.IP // KindIP
	host string // KindHostname
	lo   uint32 // KindCIDR, KindRange: inclusive bounds
	hi   uint32
}

// Parse validates and classifies a single target specifier.
func Parse(raw string) (*Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, errors.ErrInvalidTarget(raw)
	}

	if strings.Contains(s, "/") {
		return parseCIDR(s)
	}
	// A dashed range needs IPv4 on both sides; hostnames may contain
	// dashes, so only treat it as a range when the first part parses.
	if idx := strings.Index(s, "-"); idx > 0 {
		if ip := net.ParseIP(strings.TrimSpace(s[:idx])); ip != nil && ip.To4() != nil {
			return parseRange(s, idx)
		}
	}
	if ip := net.ParseIP(s); ip != nil {
		v4 := ip.To4()
		if v4 == nil {
			return nil, errors.NewTargetError(errors.CodeTargetInvalid,
				"Only IPv4 targets are supported", raw)
		}
		return &Spec{Raw: s, Kind: KindIP, ip: v4}, nil
	}
	return &Spec{Raw: s, Kind: KindHostname, host: s}, nil
}

// parseCIDR expands to the full block, network and broadcast addresses
// included, in ascending order.
func parseCIDR(s string) (*Spec, error) {
	_, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return nil, errors.WrapTargetError(errors.CodeTargetInvalid,
			"Invalid CIDR block", s, err)
	}
	v4 := ipnet.IP.To4()
	if v4 == nil {
		return nil, errors.NewTargetError(errors.CodeTargetInvalid,
			"Only IPv4 CIDR blocks are supported", s)
	}
	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		return nil, errors.NewTargetError(errors.CodeTargetInvalid,
			"Only IPv4 CIDR blocks are supported", s)
	}
	lo := ipToUint32(v4)
	hi := lo + uint32(1)<<(32-ones) - 1
	return &Spec{Raw: s, Kind: KindCIDR, lo: lo, hi: hi}, nil
}

func parseRange(s string, idx int) (*Spec, error) {
	first := strings.TrimSpace(s[:idx])
	second := strings.TrimSpace(s[idx+1:])

	a := net.ParseIP(first)
	b := net.ParseIP(second)
	if a == nil || a.To4() == nil || b == nil || b.To4() == nil {
		return nil, errors.NewTargetError(errors.CodeTargetInvalid,
			"Range bounds must be IPv4 addresses", s)
	}
	lo := ipToUint32(a.To4())
	hi := ipToUint32(b.To4())
	if hi < lo {
		return nil, errors.NewTargetError(errors.CodeTargetInvalid,
			"Range end precedes range start", s)
	}
	return &Spec{Raw: s, Kind: KindRange, lo: lo, hi: hi}, nil
}

// Count returns the number of addresses the spec expands to. Hostname
// specs report an unknown count until resolved.
func (s *Spec) Count() (uint64, bool) {
	switch s.Kind {
	case KindIP:
		return 1, true
	case KindCIDR, KindRange:
		return uint64(s.hi) - uint64(s.lo) + 1, true
	default:
		return 0, false
	}
}

// Enumerator produces the ordered address sequence for a set of
// specifiers. Hostname resolution is deferred until the specifier is
// first reached and its outcome is cached, so iteration is restartable
// without repeated lookups.
type Enumerator struct {
	specs    []*Spec
	resolver Resolver

	mu       sync.Mutex
	resolved map[int][]net.IP
	resErrs  []error
}

// NewEnumerator parses all specifiers up front. Any syntactically
// invalid specifier is an input error and fails construction.
func NewEnumerator(specifiers []string, opts ...Option) (*Enumerator, error) {
	if len(specifiers) == 0 {
		return nil, errors.NewTargetError(errors.CodeTargetInvalid,
			"No targets specified", "")
	}

	e := &Enumerator{
		resolved: make(map[int][]net.IP),
	}
	for _, raw := range specifiers {
		spec, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		e.specs = append(e.specs, spec)
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.resolver == nil {
		e.resolver = NewDNSResolver()
	}
	return e, nil
}

// Option configures an Enumerator.
type Option func(*Enumerator)

// WithResolver replaces the default DNS resolver.
func WithResolver(r Resolver) Option {
	return func(e *Enumerator) { e.resolver = r }
}

// Specs returns the parsed specifiers in input order.
func (e *Enumerator) Specs() []*Spec {
	return e.specs
}

// ResolutionErrors returns the per-specifier resolution failures
// encountered so far. They do not abort enumeration unless every
// specifier failed.
func (e *Enumerator) ResolutionErrors() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]error, len(e.resErrs))
	copy(out, e.resErrs)
	return out
}

// resolve performs (or returns the cached result of) hostname
// resolution for spec i.
func (e *Enumerator) resolve(ctx context.Context, i int) []net.IP {
	e.mu.Lock()
	if ips, ok := e.resolved[i]; ok {
		e.mu.Unlock()
		return ips
	}
	e.mu.Unlock()

	spec := e.specs[i]
	ips, err := e.resolver.LookupIPv4(ctx, spec.host)
	if err != nil {
		logging.Warn("Target resolution failed",
			"specifier", spec.Raw, "error", err)
		ips = nil
		e.mu.Lock()
		e.resErrs = append(e.resErrs, errors.ErrTargetResolution(spec.Raw, err))
		e.mu.Unlock()
	}

	e.mu.Lock()
	e.resolved[i] = ips
	e.mu.Unlock()
	return ips
}

// Iterate returns a fresh iterator over the full address sequence.
func (e *Enumerator) Iterate(ctx context.Context) *Iterator {
	return &Iterator{enum: e, ctx: ctx}
}

// Expand materializes the complete sequence. When every specifier fails
// to produce addresses and at least one resolution error occurred, the
// first error is returned as fatal.
func (e *Enumerator) Expand(ctx context.Context) ([]Address, error) {
	var out []Address
	it := e.Iterate(ctx)
	for {
		addr, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, addr)
	}
	if len(out) == 0 {
		if errs := e.ResolutionErrors(); len(errs) > 0 {
			return nil, errs[0]
		}
	}
	return out, nil
}

// Iterator walks the address sequence lazily. Obtaining a new Iterator
// restarts from the beginning.
type Iterator struct {
	enum *Enumerator
	ctx  context.Context

	specIdx int
	cur     uint32 // next numeric address for cidr/range specs
	started bool
	hostIdx int
	hostIPs []net.IP
}

// Next returns the next address in enumeration order. It returns false
// once the sequence is exhausted.
func (it *Iterator) Next() (Address, bool) {
	for it.specIdx < len(it.enum.specs) {
		spec := it.enum.specs[it.specIdx]

		switch spec.Kind {
		case KindIP:
			it.specIdx++
			return Address{IP: spec.ip}, true

		case KindHostname:
			if it.hostIPs == nil && it.hostIdx == 0 {
				it.hostIPs = it.enum.resolve(it.ctx, it.specIdx)
			}
			if it.hostIdx < len(it.hostIPs) {
				ip := it.hostIPs[it.hostIdx]
				it.hostIdx++
				return Address{IP: ip, Hostname: spec.host}, true
			}
			it.hostIPs = nil
			it.hostIdx = 0
			it.specIdx++

		case KindCIDR, KindRange:
			if !it.started {
				it.cur = spec.lo
				it.started = true
			}
			if it.cur <= spec.hi {
				ip := uint32ToIP(it.cur)
				if it.cur == spec.hi {
					// Avoid wrap-around on 255.255.255.255.
					it.started = false
					it.specIdx++
				} else {
					it.cur++
				}
				return Address{IP: ip}, true
			}
			it.started = false
			it.specIdx++
		}
	}
	return Address{}, false
}

func ipToUint32(ip net.IP) uint32 {
	return binary.BigEndian.Uint32(ip.To4())
}

func uint32ToIP(n uint32) net.IP {
	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, n)
	return ip
}
