package target

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

const (
	defaultResolveTimeout = 5 * time.Second
	defaultDNSPort        = "53"
)

// Resolver turns hostnames into IPv4 addresses.
type Resolver interface {
	LookupIPv4(ctx context.Context, host string) ([]net.IP, error)
}

// DNSResolver queries the system-configured nameservers directly for A
// records and falls back to the OS resolver when no nameserver answers
// (covers /etc/hosts entries such as localhost).
type DNSResolver struct {
	client  *dns.Client
	servers []string
}

// NewDNSResolver builds a resolver from /etc/resolv.conf. A missing or
// unreadable config leaves the server list empty and every lookup goes
// through the OS resolver.
func NewDNSResolver() *DNSResolver {
	r := &DNSResolver{
		client: &dns.Client{Timeout: defaultResolveTimeout},
	}
	if cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil {
		for _, server := range cfg.Servers {
			r.servers = append(r.servers, net.JoinHostPort(server, defaultDNSPort))
		}
	}
	return r
}

// LookupIPv4 resolves host to its A records.
func (r *DNSResolver) LookupIPv4(ctx context.Context, host string) ([]net.IP, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil || resp == nil || resp.Rcode != dns.RcodeSuccess {
			continue
		}
		var ips []net.IP
		for _, rr := range resp.Answer {
			if a, ok := rr.(*dns.A); ok {
				ips = append(ips, a.A.To4())
			}
		}
		if len(ips) > 0 {
			return ips, nil
		}
	}

	return r.lookupSystem(ctx, host)
}

// lookupSystem is the fallback path through the OS resolver.
func (r *DNSResolver) lookupSystem(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	for _, ip := range addrs {
		if v4 := ip.To4(); v4 != nil {
			ips = append(ips, v4)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no IPv4 addresses for %s", host)
	}
	return ips, nil
}
