package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// publicDNS are servers to be queried if a local lookup fails.
var publicDNS = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"208.67.222.222",         // Cisco OpenDNS
}

var ErrNoAddress = errors.New("no IP addresses found")

// Resolver looks hosts up with the system resolver first and races public
// DNS servers when that fails. Registry hosts behind captive or broken
// resolvers stay reachable this way.
type Resolver struct {
	// Fallback servers, host or [ipv6] without port.
	Servers []string

	LocalTimeout  time.Duration
	RemoteTimeout time.Duration
}

// Default is the resolver used by the package-level helpers.
var Default = &Resolver{
	Servers:       publicDNS,
	LocalTimeout:  1 * time.Second,
	RemoteTimeout: 2 * time.Second,
}

// Lookup resolves host with the default resolver.
func Lookup(ctx context.Context, host string) (string, error) {
	return Default.Lookup(ctx, host)
}

// DialContext dials addr with the default resolver.
func DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return Default.DialContext(ctx, network, addr)
}

// Lookup resolves a hostname to a single IP address, preferring IPv4.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		return ip.String(), nil
	}
	if host == "localhost" {
		return "127.0.0.1", nil
	}

	// 1. Try Local/System DNS first
	ip, err := r.localLookup(ctx, host)
	if err == nil {
		return ip, nil
	}

	// 2. Fallback to public DNS
	return r.remoteLookupWithRace(ctx, host)
}

// DialContext resolves the host part of addr and dials the result.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}

	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func (r *Resolver) localLookup(ctx context.Context, host string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.LocalTimeout)
	defer cancel()

	ips, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return preferIPv4(ips)
}

// remoteLookupWithRace returns the first answer from any fallback server.
func (r *Resolver) remoteLookupWithRace(ctx context.Context, host string) (string, error) {
	if len(r.Servers) == 0 {
		return "", fmt.Errorf("failed to resolve %s: no fallback servers", host)
	}

	type result struct {
		ip  string
		err error
	}

	results := make(chan result, len(r.Servers))
	ctx, cancel := context.WithTimeout(ctx, r.RemoteTimeout)
	defer cancel()

	for _, server := range r.Servers {
		go func() {
			ip, err := remoteLookup(ctx, host, server)
			results <- result{ip: ip, err: err}
		}()
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
			return "", fmt.Errorf("DNS lookup timed out during public DNS race")
		}
	}

	return "", fmt.Errorf("failed to resolve %s: all %d public DNS servers failed", host, failures)
}

// remoteLookup queries a specific DNS server for host.
func remoteLookup(ctx context.Context, host, server string) (string, error) {
	res := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(strings.Trim(server, "[]"), "53"))
		},
	}

	ips, err := res.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return preferIPv4(ips)
}

func preferIPv4(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", ErrNoAddress
	}
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
