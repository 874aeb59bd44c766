package deskauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// TokenSet is the result of a successful code exchange.
type TokenSet struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
}

// Exchanger performs the HTTPS authorization-code-for-tokens exchange against
// the identity provider's token endpoint.
type Exchanger interface {
	Exchange(ctx context.Context, code, verifier, redirectURI string) (*TokenSet, error)
}

// ExchangeError is an exchange failure carrying the provider's error payload
// verbatim for diagnostics. Authorization codes are single-use, so exchanges
// are never retried.
type ExchangeError struct {
	StatusCode int
	Body       []byte
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: status %d: %s", e.StatusCode, e.Body)
}

var _ Exchanger = (*oauth2Exchanger)(nil)

// oauth2Exchanger implements Exchanger on golang.org/x/oauth2.
type oauth2Exchanger struct {
	clientID string
	tokenURL string
	client   *http.Client
}

// NewExchanger creates the default Exchanger for a public PKCE client. The
// client id travels in the request body; there is no client secret.
func NewExchanger(tokenURL, clientID string, client *http.Client) Exchanger {
	if client == nil {
		client = http.DefaultClient
	}
	return &oauth2Exchanger{clientID: clientID, tokenURL: tokenURL, client: client}
}

func (e *oauth2Exchanger) Exchange(ctx context.Context, code, verifier, redirectURI string) (*TokenSet, error) {
	cfg := &oauth2.Config{
		ClientID:    e.clientID,
		RedirectURL: redirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  e.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, &ExchangeError{StatusCode: rerr.Response.StatusCode, Body: rerr.Body}
		}
		return nil, fmt.Errorf("token exchange: %w", err)
	}

	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		ts.IDToken = id
	}
	return ts, nil
}
