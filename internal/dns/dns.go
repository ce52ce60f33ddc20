package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// PublicDNS are servers queried when the system resolver fails.
var PublicDNS = []string{
	"1.1.1.1",         // Cloudflare
	"1.0.0.1",         // Cloudflare
	"8.8.8.8",         // Google
	"8.8.4.4",         // Google
	"9.9.9.9",         // Quad9
	"149.112.112.112", // Quad9
	"208.67.222.222",  // Cisco OpenDNS
	"208.67.220.220",  // Cisco OpenDNS
}

// ErrNoAddress is returned when a lookup succeeds without any address.
var ErrNoAddress = errors.New("no IP addresses found")

// Resolver resolves hostnames with the system resolver first and races a set
// of public DNS servers as a fallback.
type Resolver struct {
	// Servers are the fallback DNS servers, without port.
	Servers []string

	// LocalTimeout bounds the system lookup.
	LocalTimeout time.Duration

	// RemoteTimeout bounds the whole public DNS race.
	RemoteTimeout time.Duration

	// local and remote are swapped in tests.
	local  func(ctx context.Context, host string) ([]string, error)
	remote func(ctx context.Context, host, server string) ([]string, error)
}

// NewResolver returns a Resolver using PublicDNS.
func NewResolver() *Resolver {
	return &Resolver{
		Servers:       PublicDNS,
		LocalTimeout:  time.Second,
		RemoteTimeout: 2 * time.Second,
		local:         (&net.Resolver{}).LookupHost,
		remote:        lookupVia,
	}
}

// Lookup resolves host to a single IP address, preferring IPv4. IP literals
// are returned unchanged.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	// 1. Try Local/System DNS first
	localCtx, cancel := context.WithTimeout(ctx, r.LocalTimeout)
	ips, err := r.local(localCtx, host)
	cancel()
	if err == nil {
		if ip, err := preferIPv4(ips); err == nil {
			return ip, nil
		}
	}

	// 2. Fallback to public DNS
	return r.race(ctx, host)
}

// race queries every fallback server at once and returns the first answer.
func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	if len(r.Servers) == 0 {
		return "", fmt.Errorf("failed to resolve %s: no fallback DNS servers", host)
	}

	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, r.RemoteTimeout)
	defer cancel()

	results := make(chan result, len(r.Servers))
	for _, server := range r.Servers {
		go func(server string) {
			ips, err := r.remote(ctx, host, server)
			if err != nil {
				results <- result{err: err}
				return
			}
			ip, err := preferIPv4(ips)
			results <- result{ip: ip, err: err}
		}(server)
	}

	failures := 0
	for range r.Servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
			failures++
		case <-ctx.Done():
			return "", fmt.Errorf("DNS lookup for %s timed out during public DNS race", host)
		}
	}
	return "", fmt.Errorf("failed to resolve %s: all %d public DNS servers failed", host, failures)
}

// lookupVia queries a specific DNS server for host.
func lookupVia(ctx context.Context, host, server string) ([]string, error) {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := new(net.Dialer)
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
	return r.LookupHost(ctx, host)
}

func preferIPv4(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", ErrNoAddress
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
