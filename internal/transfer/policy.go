// Package transfer moves bytes from broadcaster CDNs to disk and validates
// remote sources against the configured URL policy.
package transfer

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInsufficientSpace is reported when the target volume is too full.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// ValidationError reports a remote source that must not be used.
type ValidationError struct {
	URL        string
	Reason     string
	StatusCode int
}

func (e *ValidationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("url validation failed for %s: %s (status %d)", e.URL, e.Reason, e.StatusCode)
	}
	return fmt.Sprintf("url validation failed for %s: %s", e.URL, e.Reason)
}

// Policy decides which remote URLs may be fetched.
type Policy struct {
	AllowHTTP           bool
	AllowUnknownDomains bool
	allowed             map[string]struct{}
}

// NewPolicy builds a policy from an allow-list of registrable domains
// such as "zdf.de".
func NewPolicy(allowHTTP, allowUnknownDomains bool, allowedDomains []string) *Policy {
	p := &Policy{
		AllowHTTP:           allowHTTP,
		AllowUnknownDomains: allowUnknownDomains,
		allowed:             make(map[string]struct{}, len(allowedDomains)),
	}
	for _, d := range allowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			p.allowed[d] = struct{}{}
		}
	}
	return p
}

// CheckScheme rejects anything but https, or http when allowed.
func (p *Policy) CheckScheme(u *url.URL) error {
	switch strings.ToLower(u.Scheme) {
	case "https":
		return nil
	case "http":
		if p.AllowHTTP {
			return nil
		}
	}
	return &ValidationError{URL: u.String(), Reason: "insecure or unsupported scheme " + u.Scheme}
}

// CheckDomain rejects hosts whose last two labels are not allow-listed.
func (p *Policy) CheckDomain(u *url.URL) error {
	if p.AllowUnknownDomains {
		return nil
	}
	top, ok := TopDomain(u.Hostname())
	if !ok {
		return &ValidationError{URL: u.String(), Reason: "invalid host " + u.Hostname()}
	}
	if _, allowed := p.allowed[top]; !allowed {
		return &ValidationError{URL: u.String(), Reason: "domain " + top + " is not in the allowed list"}
	}
	return nil
}

// Check parses raw and applies the scheme and domain rules.
func (p *Policy) Check(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ValidationError{URL: raw, Reason: "empty url"}
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, &ValidationError{URL: raw, Reason: "invalid url format"}
	}
	if err := p.CheckScheme(u); err != nil {
		return nil, err
	}
	if err := p.CheckDomain(u); err != nil {
		return nil, err
	}
	return u, nil
}

// TopDomain returns the last two labels of host.
func TopDomain(host string) (string, bool) {
	parts := strings.Split(strings.ToLower(strings.TrimSuffix(host, ".")), ".")
	if len(parts) < 2 || parts[len(parts)-2] == "" {
		return "", false
	}
	return parts[len(parts)-2] + "." + parts[len(parts)-1], true
}
