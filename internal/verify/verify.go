// Package verify provides optional email deliverability checks. The crawl
// pipeline never depends on it; it only decorates the sink chain.
package verify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
	"github.com/JakeFAU/profile-contact-crawler/internal/emails"
)

// Provider names accepted in configuration.
const (
	ProviderNone = "none"
	ProviderMX   = "mx"
)

// ErrUnknownProvider is returned by New for unrecognized provider names.
var ErrUnknownProvider = errors.New("unknown email provider")

// Verifier reports whether an address looks deliverable.
type Verifier interface {
	Verify(ctx context.Context, email string) (bool, error)
}

// Providers lists the accepted provider names.
func Providers() []string {
	return []string{ProviderNone, ProviderMX}
}

// New returns the verifier for provider. "none" (or "") returns nil.
func New(provider string) (Verifier, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderNone:
		return nil, nil
	case ProviderMX:
		return NewMX(net.DefaultResolver), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// MXResolver is the subset of *net.Resolver the MX verifier needs.
type MXResolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// MX accepts addresses whose domain publishes at least one MX record.
// Lookups are cached per domain for the verifier's lifetime.
type MX struct {
	resolver MXResolver
	cache    sync.Map // domain -> bool
}

// NewMX builds an MX verifier.
func NewMX(resolver MXResolver) *MX {
	return &MX{resolver: resolver}
}

// Verify implements Verifier. A missing domain (NXDOMAIN) is a negative
// answer, not an error.
func (m *MX) Verify(ctx context.Context, email string) (bool, error) {
	if !emails.Valid(email) {
		return false, nil
	}
	domain := strings.ToLower(email[strings.LastIndex(email, "@")+1:])
	if cached, ok := m.cache.Load(domain); ok {
		return cached.(bool), nil
	}
	records, err := m.resolver.LookupMX(ctx, domain)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			m.cache.Store(domain, false)
			return false, nil
		}
		return false, fmt.Errorf("lookup mx %s: %w", domain, err)
	}
	ok := len(records) > 0
	m.cache.Store(domain, ok)
	return ok, nil
}

// Sink adds VerifiedEmails to success records before passing them on.
type Sink struct {
	next     crawler.Sink
	verifier Verifier
	logger   *zap.Logger
}

// NewSink decorates next.
func NewSink(next crawler.Sink, verifier Verifier, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{next: next, verifier: verifier, logger: logger}
}

// Emit verifies each found email and forwards the record. Verification errors
// leave that address unverified; they never block the record.
func (s *Sink) Emit(ctx context.Context, record crawler.ProfileRecord) error {
	if !record.Failed() && s.verifier != nil {
		verified := make([]string, 0, len(record.FoundEmails))
		for _, email := range record.FoundEmails {
			ok, err := s.verifier.Verify(ctx, email)
			if err != nil {
				s.logger.Warn("email verification failed", zap.String("email", email), zap.Error(err))
				continue
			}
			if ok {
				verified = append(verified, email)
			}
		}
		record.VerifiedEmails = verified
	}
	if err := s.next.Emit(ctx, record); err != nil {
		return fmt.Errorf("verified sink: %w", err)
	}
	return nil
}
