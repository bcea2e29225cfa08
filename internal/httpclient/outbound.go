// Package httpclient builds the outbound HTTP client used for
// user-supplied webhook targets. Targets come from schedule recipients,
// so delivery must not be usable to reach internal services: private,
// loopback, and link-local addresses are blocked at dial time, which
// also covers DNS rebinding between validation and connect.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quartzbi/beacon/errors"
)

const maxRedirects = 10

// ValidateTarget rejects webhook URLs before any request is made.
// Dial-time IP blocking still applies afterwards.
func ValidateTarget(rawURL string, allowPrivate bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(err, "invalid webhook target %q", rawURL)
	}
	return validateURL(u, allowPrivate)
}

func validateURL(u *url.URL, allowPrivate bool) error {
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return errors.Newf("webhook scheme %q not allowed", u.Scheme)
	}
	// http://evil.com@localhost/ style credential confusion
	if u.User != nil {
		return errors.New("webhook target must not carry credentials")
	}
	if !allowPrivate {
		if ip := net.ParseIP(u.Hostname()); ip != nil && isPrivateIP(ip) {
			return errors.Newf("webhook target resolves to a blocked address: %s", ip)
		}
	}
	return nil
}

// NewOutbound builds an HTTP client for webhook delivery. When
// allowPrivate is false the dialer refuses connections to private
// address space, and redirects are re-validated.
func NewOutbound(timeout time.Duration, allowPrivate bool) *http.Client {
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.Newf("stopped after %d redirects", maxRedirects)
			}
			return validateURL(req.URL, allowPrivate)
		},
	}

	if allowPrivate {
		return client
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	client.Transport = &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, errors.Wrap(err, "invalid address")
			}
			ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to resolve host %q", host)
			}
			for _, ip := range ips {
				if isPrivateIP(ip) {
					return nil, errors.Newf("blocked address: %s", ip)
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return client
}

// isPrivateIP covers RFC 1918, loopback, link-local, and unspecified
// addresses for both address families.
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
