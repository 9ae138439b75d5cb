package client

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/oauth2"
)

var ErrStateMismatch = errors.New("callback state does not match the flow state")

// Callback is what the relay stores when the authorization server redirects
// the browser to an endpoint.
type Callback struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// AuthCodeFlow is an authorization code flow whose redirect URL is a relay
// endpoint.
type AuthCodeFlow struct {
	Config   *oauth2.Config
	Endpoint string
	State    string
	Verifier string
}

// StartAuthCodeFlow allocates an endpoint and prepares a copy of conf that
// redirects to it. conf is not modified.
func (c *Client) StartAuthCodeFlow(ctx context.Context, conf *oauth2.Config) (*AuthCodeFlow, error) {
	endpoint, err := c.NewEndpoint(ctx)
	if err != nil {
		return nil, err
	}

	flowConf := *conf
	flowConf.Scopes = slices.Clone(conf.Scopes)
	flowConf.RedirectURL = endpoint

	return &AuthCodeFlow{
		Config:   &flowConf,
		Endpoint: endpoint,
		State:    rand.Text(),
		Verifier: oauth2.GenerateVerifier(),
	}, nil
}

// AuthCodeURL returns the URL the browser must open to authorize.
func (f *AuthCodeFlow) AuthCodeURL(opts ...oauth2.AuthCodeOption) string {
	opts = append(opts, oauth2.S256ChallengeOption(f.Verifier))
	return f.Config.AuthCodeURL(f.State, opts...)
}

// CompleteAuthCodeFlow waits for the callback to reach the flow endpoint and
// exchanges the authorization code for a token. The client's HTTP client is
// used for the exchange unless ctx already carries one under oauth2.HTTPClient.
func (c *Client) CompleteAuthCodeFlow(ctx context.Context, flow *AuthCodeFlow,
	opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {

	var cb Callback
	if err := c.Wait(ctx, flow.Endpoint, &cb); err != nil {
		return nil, fmt.Errorf("failed to wait for callback: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(cb.State), []byte(flow.State)) != 1 {
		return nil, ErrStateMismatch
	}
	if cb.Code == "" {
		return nil, errors.New("callback carries no authorization code")
	}

	if ctx.Value(oauth2.HTTPClient) == nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	opts = append(opts, oauth2.VerifierOption(flow.Verifier))
	token, err := flow.Config.Exchange(ctx, cb.Code, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}
