package backbone

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// ClientCredentials identify this application to the token endpoint.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// Session is an authenticated login.
type Session struct {
	Tokens  TokenSource
	Address string
}

type oauthTokens struct {
	ts oauth2.TokenSource
}

func (o oauthTokens) Token() (string, error) {
	tok, err := o.ts.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func oauthConfig(baseURL string, cc ClientCredentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cc.ClientID,
		ClientSecret: cc.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  baseURL + "/connect/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Login performs the OAuth2 password grant. The password is the hex
// encoded key verifier, never the passphrase. The returned token source
// refreshes silently; ctx must outlive it.
func (c *Client) Login(ctx context.Context, cc ClientCredentials, username string, verifier []byte) (*Session, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	cfg := oauthConfig(c.baseURL, cc)

	tok, err := cfg.PasswordCredentialsToken(ctx, username, hex.EncodeToString(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", classifyTokenError(err), err)
	}

	address, _ := tok.Extra("address").(string)
	return &Session{
		Tokens:  oauthTokens{ts: cfg.TokenSource(ctx, tok)},
		Address: address,
	}, nil
}

// classifyTokenError maps a failed token request onto the sentinels used
// for API calls. Anything that never produced an HTTP answer is
// ErrUnavailable.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return ErrUnavailable
	}
	code := re.Response.StatusCode
	if code >= http.StatusInternalServerError || code == http.StatusTooManyRequests {
		return classifyStatus(code)
	}
	// invalid_grant and invalid_client both arrive as 400 or 401
	return ErrUnauthorized
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (s StaticToken) Token() (string, error) { return string(s), nil }
