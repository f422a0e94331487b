// Package gcp supplies Google Cloud credentials to the synthesis and storage
// clients.
package gcp

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// CloudPlatformScope covers both Text-to-Speech and Cloud Storage.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Credentials adapts an oauth2.TokenSource to the bearer-token provider the
// synthesis orchestrator expects. Tokens are cached and refreshed by the
// underlying ReuseTokenSource.
type Credentials struct {
	mu     sync.Mutex
	source oauth2.TokenSource
	newSrc func(ctx context.Context) (oauth2.TokenSource, error)
}

// NewCredentials uses staticToken when set, otherwise Application Default
// Credentials resolved lazily on first use.
func NewCredentials(staticToken string) *Credentials {
	if staticToken != "" {
		return FromTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: staticToken}))
	}
	return &Credentials{
		newSrc: func(ctx context.Context) (oauth2.TokenSource, error) {
			return google.DefaultTokenSource(ctx, CloudPlatformScope)
		},
	}
}

func FromTokenSource(src oauth2.TokenSource) *Credentials {
	return &Credentials{source: oauth2.ReuseTokenSource(nil, src)}
}

// TokenSource returns the resolved source, creating it if needed.
func (c *Credentials) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source != nil {
		return c.source, nil
	}

	src, err := c.newSrc(context.WithoutCancel(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to find default credentials: %w", err)
	}
	c.source = oauth2.ReuseTokenSource(nil, src)
	return c.source, nil
}

// Token makes Credentials an oauth2.TokenSource. Default credentials are
// looked up on the first call, so clients can be built before they exist.
func (c *Credentials) Token() (*oauth2.Token, error) {
	src, err := c.TokenSource(context.Background())
	if err != nil {
		return nil, err
	}
	return src.Token()
}

// AccessToken returns a current bearer token. An empty string with a nil
// error is possible when the source yields a token without an access value.
func (c *Credentials) AccessToken(ctx context.Context) (string, error) {
	src, err := c.TokenSource(ctx)
	if err != nil {
		return "", err
	}

	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain access token: %w", err)
	}
	return tok.AccessToken, nil
}
