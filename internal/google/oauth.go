package google

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"sync"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

// ClientSecrets lazily reads the OAuth client registration downloaded from
// the Google Cloud console (client_secret.json).
type ClientSecrets struct {
	path string

	mu   sync.Mutex
	data []byte
}

// NewClientSecrets returns a loader for the client secret file at path.
// The file is not read until a config is requested.
func NewClientSecrets(path string) *ClientSecrets {
	return &ClientSecrets{path: path}
}

// Path returns the client secret file location.
func (s *ClientSecrets) Path() string {
	return s.path
}

// Config returns an oauth2.Config for the registration, requesting scopes.
func (s *ClientSecrets) Config(scopes []string) (*oauth2.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		data, err := os.ReadFile(s.path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoClientSecrets, s.path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read client secret file: %w", err)
		}
		s.data = data
	}

	config, err := googleoauth.ConfigFromJSON(s.data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client secret file %s: %w", s.path, err)
	}
	return config, nil
}

// OAuthRefresher exchanges refresh tokens for new access tokens.
type OAuthRefresher struct {
	secrets *ClientSecrets
	scopes  []string
}

// NewOAuthRefresher returns a Refresher. Credentials that carry their own
// client identity are refreshed with it; otherwise secrets is consulted.
func NewOAuthRefresher(secrets *ClientSecrets) *OAuthRefresher {
	return &OAuthRefresher{secrets: secrets, scopes: RequiredScopes}
}

// Refresh implements Refresher.
func (r *OAuthRefresher) Refresh(ctx context.Context, c *Credential) (*Credential, error) {
	if c == nil || c.RefreshToken == "" {
		return nil, errors.New("credential has no refresh token")
	}

	var config *oauth2.Config
	if c.HasClientIdentity() {
		config = c.oauthConfig(r.scopes)
	} else {
		if r.secrets == nil {
			return nil, ErrNoClientSecrets
		}
		var err error
		if config, err = r.secrets.Config(r.scopes); err != nil {
			return nil, err
		}
	}

	// An empty access token forces the token source to hit the token endpoint.
	tok, err := config.TokenSource(ctx, &oauth2.Token{RefreshToken: c.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	fallback := c.Scopes
	if len(fallback) == 0 {
		fallback = r.scopes
	}
	return credentialFromToken(tok, config, fallback), nil
}

// NewHTTPClient returns an HTTP client that authenticates with c.
// The client is pinned to HTTP/1.1 to avoid HTTP/2 stream errors seen
// against the Gmail batch frontends.
func NewHTTPClient(c *Credential) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ForceAttemptHTTP2 = false
	base.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}

	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(c.Token(), oauth2.StaticTokenSource(c.Token())),
			Base:   base,
		},
	}
}
