package gmail

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/gmailmcp/internal/google"
	"github.com/teemow/gmailmcp/internal/instrumentation"
)

// CredentialSource supplies a credential valid for the Gmail scopes.
// *google.Flow implements it.
type CredentialSource interface {
	Credential(ctx context.Context) (*google.Credential, error)
}

// Factory turns credentials into Gmail services.
type Factory struct {
	source        CredentialSource
	limiter       *rate.Limiter
	metrics       *instrumentation.Metrics
	clientOptions []option.ClientOption
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithRateLimit paces Gmail API calls client side. A non-positive limit
// disables pacing.
func WithRateLimit(limit float64, burst int) FactoryOption {
	return func(f *Factory) {
		if limit <= 0 {
			f.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

// WithMetrics records per-operation Gmail API metrics.
func WithMetrics(m *instrumentation.Metrics) FactoryOption {
	return func(f *Factory) { f.metrics = m }
}

// WithClientOptions appends options passed to gmail.NewService, such as
// option.WithEndpoint.
func WithClientOptions(opts ...option.ClientOption) FactoryOption {
	return func(f *Factory) { f.clientOptions = append(f.clientOptions, opts...) }
}

// NewFactory creates a Factory drawing credentials from source.
func NewFactory(source CredentialSource, opts ...FactoryOption) *Factory {
	f := &Factory{source: source}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Build creates a Service authenticated with cred. The limiter is shared by
// every Service the factory builds.
func (f *Factory) Build(ctx context.Context, cred *google.Credential) (*Service, error) {
	if cred == nil || cred.AccessToken == "" {
		return nil, errors.New("credential has no access token")
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(google.NewHTTPClient(cred))}, f.clientOptions...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Service{
		users:   svc.Users,
		limiter: f.limiter,
		metrics: f.metrics,
	}, nil
}

// Acquire obtains a credential and builds a Capability from it. Credential
// failures are returned as is; build failures wrap ErrServiceUnavailable.
func (f *Factory) Acquire(ctx context.Context) (Capability, error) {
	if f.source == nil {
		return nil, fmt.Errorf("%w: no credential source", ErrServiceUnavailable)
	}
	cred, err := f.source.Credential(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := f.Build(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return svc, nil
}
