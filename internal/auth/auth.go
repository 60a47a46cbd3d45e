// Package auth supplies bearer tokens for the backend REST and WebSocket
// endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrNoToken is returned when no token is available from a source.
var ErrNoToken = errors.New("no auth token available")

// TokenSource supplies the bearer token attached to outbound requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token, typically from configuration.
type StaticToken string

// Token returns the token, or ErrNoToken if it is empty.
func (s StaticToken) Token(ctx context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// CookieToken reads the bearer token from a cookie held in a jar. The jar is
// shared with the REST client so a login response refreshes the token.
type CookieToken struct {
	Jar  http.CookieJar
	URL  *url.URL
	Name string
}

// NewCookieToken creates a CookieToken for cookies scoped to rawURL.
func NewCookieToken(jar http.CookieJar, rawURL, name string) (*CookieToken, error) {
	if jar == nil {
		return nil, fmt.Errorf("cookie jar is required")
	}
	if name == "" {
		return nil, fmt.Errorf("cookie name is required")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse cookie url: %w", err)
	}
	// Jars scope cookies by http(s) origin
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}

	return &CookieToken{Jar: jar, URL: u, Name: name}, nil
}

// Token returns the value of the named cookie.
func (c *CookieToken) Token(ctx context.Context) (string, error) {
	for _, cookie := range c.Jar.Cookies(c.URL) {
		if cookie.Name == c.Name && cookie.Value != "" {
			return cookie.Value, nil
		}
	}
	return "", fmt.Errorf("%w: cookie %q not set", ErrNoToken, c.Name)
}

// Chain tries each source in order and returns the first token found.
type Chain []TokenSource

// Token implements TokenSource.
func (c Chain) Token(ctx context.Context) (string, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		token, err := src.Token(ctx)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", ErrNoToken
}

// Header returns the Authorization header value for src, or "" when no
// token is available.
func Header(ctx context.Context, src TokenSource) (string, error) {
	if src == nil {
		return "", nil
	}
	token, err := src.Token(ctx)
	if errors.Is(err, ErrNoToken) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

// Optional wraps src so that a missing token yields "" instead of
// ErrNoToken. Dialers use it to connect unauthenticated when no token is
// configured.
func Optional(src TokenSource) TokenSource {
	return optional{src: src}
}

type optional struct {
	src TokenSource
}

func (o optional) Token(ctx context.Context) (string, error) {
	if o.src == nil {
		return "", nil
	}
	token, err := o.src.Token(ctx)
	if errors.Is(err, ErrNoToken) {
		return "", nil
	}
	return token, err
}
