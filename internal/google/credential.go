package google

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

// expiryDelta matches oauth2's early-expiry window so a token is never
// handed out seconds before it lapses.
const expiryDelta = 10 * time.Second

// Credential is an OAuth credential for the Gmail API together with the
// client identity needed to refresh it. Values are replaced, never mutated.
type Credential struct {
	AccessToken  string
	RefreshToken string
	// Expiry is the access token expiry. The zero value means the token
	// carries no expiry.
	Expiry time.Time
	Scopes []string

	ClientID     string
	ClientSecret string
	TokenURI     string
}

// Expired reports whether the access token is past its expiry at now.
func (c *Credential) Expired(now time.Time) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return !now.Add(expiryDelta).Before(c.Expiry)
}

// Valid reports whether c can be used as-is: it has an access token that
// has not expired and its scopes cover required.
func (c *Credential) Valid(now time.Time, required []string) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	return !c.Expired(now) && hasScopes(c.Scopes, required)
}

// Token converts c to an oauth2.Token.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	}
}

// HasClientIdentity reports whether c carries enough client information to
// refresh itself without the client secret file.
func (c *Credential) HasClientIdentity() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// oauthConfig builds an oauth2.Config from the credential's own client identity.
func (c *Credential) oauthConfig(scopes []string) *oauth2.Config {
	endpoint := googleoauth.Endpoint
	if c.TokenURI != "" {
		endpoint.TokenURL = c.TokenURI
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
}

// credentialFromToken builds a Credential from a token response. Granted
// scopes come from the response's scope field, falling back to fallback
// when the provider omits it.
func credentialFromToken(tok *oauth2.Token, config *oauth2.Config, fallback []string) *Credential {
	scopes := fallback
	if raw, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(raw) != "" {
		scopes = strings.Fields(raw)
	}
	return &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scopes:       append([]string(nil), scopes...),
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURI:     config.Endpoint.TokenURL,
	}
}
