// Package verify scores lead email addresses for deliverability without
// sending to them: syntax, MX records, disposable and role-based addresses.
package verify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// Result is the verdict for one address.
type Result = domain.Verification

// MXResolver looks up mail exchangers. *net.Resolver satisfies it.
type MXResolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

var emailSyntax = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

var disposableDomains = []string{
	"tempmail.com", "guerrillamail.com", "10minutemail.com",
	"mailinator.com", "throwaway.email", "temp-mail.org",
	"fakeinbox.com", "trashmail.com", "yopmail.com",
	"sharklasers.com", "guerrillamail.info", "grr.la",
}

var rolePrefixes = []string{
	"info", "contact", "support", "sales", "admin",
	"help", "billing", "noreply", "no-reply", "webmaster",
	"postmaster", "hostmaster", "abuse", "security",
}

var genericPrefixes = []string{"info", "contact", "support", "sales", "admin"}

// Verifier checks addresses. Safe for concurrent use.
type Verifier struct {
	resolver   MXResolver
	timeout    time.Duration
	disposable []string
}

// New creates a verifier. A nil resolver uses net.DefaultResolver.
func New(resolver MXResolver, timeout time.Duration, extraDisposable ...string) *Verifier {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := append([]string{}, disposableDomains...)
	for _, x := range extraDisposable {
		if x = strings.ToLower(strings.TrimSpace(x)); x != "" {
			d = append(d, x)
		}
	}
	return &Verifier{resolver: resolver, timeout: timeout, disposable: d}
}

// Verify scores email. An error means the check could not be completed (DNS
// timeout, cancelled context) and may succeed on retry; a definitive
// negative is reported as an invalid Result.
func (v *Verifier) Verify(ctx context.Context, email string) (Result, error) {
	email = strings.TrimSpace(email)
	if !emailSyntax.MatchString(email) {
		return Result{Status: domain.VerificationInvalid, Confidence: 0}, nil
	}
	at := strings.LastIndex(email, "@")
	local, host := email[:at], strings.ToLower(email[at+1:])

	hasMX, err := v.hasMX(ctx, host)
	if err != nil {
		return Result{}, err
	}
	if !hasMX {
		return Result{Status: domain.VerificationInvalid, Confidence: 0.2}, nil
	}

	if v.isDisposable(host) {
		return Result{Status: domain.VerificationRisky, Confidence: 0.3}, nil
	}
	if hasPrefix(strings.ToLower(local), rolePrefixes) {
		return Result{Status: domain.VerificationRisky, Confidence: 0.4}, nil
	}

	c := confidence(local, host)
	switch {
	case c > 0.7:
		return Result{Status: domain.VerificationValid, Confidence: c}, nil
	case c > 0.4:
		return Result{Status: domain.VerificationRisky, Confidence: c}, nil
	default:
		return Result{Status: domain.VerificationInvalid, Confidence: c}, nil
	}
}

func (v *Verifier) hasMX(ctx context.Context, host string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	records, err := v.resolver.LookupMX(ctx, host)
	if err == nil {
		return len(records) > 0, nil
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout && !dnsErr.IsTemporary {
		logger.Debug("mx lookup failed", "domain", host, "error", err.Error())
		return false, nil
	}
	return false, fmt.Errorf("mx lookup %s: %w", host, err)
}

func (v *Verifier) isDisposable(host string) bool {
	for _, d := range v.disposable {
		if strings.Contains(host, d) {
			return true
		}
	}
	return false
}

func confidence(local, host string) float64 {
	score := 0.5
	if strings.HasSuffix(host, ".com") || strings.HasSuffix(host, ".io") || strings.HasSuffix(host, ".co") {
		score += 0.15
	}
	if strings.Contains(local, ".") {
		score += 0.15
	}
	if n := len(local); n >= 5 && n <= 30 {
		score += 0.1
	}
	if !hasPrefix(local, genericPrefixes) {
		score += 0.1
	}
	return math.Min(math.Round(score*100)/100, 1.0)
}

func hasPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
