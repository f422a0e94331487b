package gcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type countingSource struct {
	token *oauth2.Token
	err   error
	calls int
}

func (s *countingSource) Token() (*oauth2.Token, error) {
	s.calls++
	return s.token, s.err
}

func TestStaticToken(t *testing.T) {
	c := NewCredentials("ya29.static")

	tok, err := c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ya29.static", tok)
}

func TestFromTokenSourceReusesValidToken(t *testing.T) {
	src := &countingSource{token: &oauth2.Token{AccessToken: "abc"}}
	c := FromTokenSource(src)

	for i := 0; i < 3; i++ {
		tok, err := c.AccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "abc", tok)
	}
	assert.Equal(t, 1, src.calls)
}

func TestTokenSourceError(t *testing.T) {
	c := FromTokenSource(&countingSource{err: errors.New("revoked")})

	tok, err := c.AccessToken(context.Background())
	assert.Empty(t, tok)
	assert.ErrorContains(t, err, "revoked")
}

func TestDefaultCredentialsResolvedOnce(t *testing.T) {
	resolved := 0
	c := &Credentials{newSrc: func(context.Context) (oauth2.TokenSource, error) {
		resolved++
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "adc"}), nil
	}}

	for i := 0; i < 2; i++ {
		tok, err := c.AccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "adc", tok)
	}
	assert.Equal(t, 1, resolved)
}

func TestDefaultCredentialsMissing(t *testing.T) {
	c := &Credentials{newSrc: func(context.Context) (oauth2.TokenSource, error) {
		return nil, errors.New("could not find default credentials")
	}}

	_, err := c.AccessToken(context.Background())
	assert.ErrorContains(t, err, "failed to find default credentials")
}

func TestCredentialsResolveOnFirstToken(t *testing.T) {
	resolved := 0
	c := &Credentials{newSrc: func(context.Context) (oauth2.TokenSource, error) {
		resolved++
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "adc"}), nil
	}}

	var src oauth2.TokenSource = c
	assert.Equal(t, 0, resolved)

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "adc", tok.AccessToken)
	assert.Equal(t, 1, resolved)
}

func TestCredentialsTokenWithoutDefaultCredentials(t *testing.T) {
	c := &Credentials{newSrc: func(context.Context) (oauth2.TokenSource, error) {
		return nil, errors.New("could not find default credentials")
	}}

	tok, err := c.Token()
	assert.Nil(t, tok)
	assert.ErrorContains(t, err, "failed to find default credentials")
}
