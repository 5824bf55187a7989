package jira

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// OAuth wraps the Atlassian 3LO authorization code flow.
type OAuth struct {
	config *oauth2.Config
	client *http.Client
}

// NewOAuth builds the flow from cfg. Tokens are requested through client.
func NewOAuth(cfg *Config, client *http.Client) *OAuth {
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.ScopeList(),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
	}
}

func (o *OAuth) ctx(ctx context.Context) context.Context {
	if o.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, o.client)
}

// AuthCodeURL returns the consent URL for state with an S256 challenge
// derived from verifier.
func (o *OAuth) AuthCodeURL(state, verifier string) string {
	return o.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("audience", "api.atlassian.com"),
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.S256ChallengeOption(verifier),
	)
}

// Exchange trades an authorization code for tokens.
func (o *OAuth) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	tok, err := o.config.Exchange(o.ctx(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}
	return tok, nil
}

// Refresh obtains a new access token. The returned token keeps
// refreshToken when the server does not rotate it.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	tok, err := o.config.TokenSource(o.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}
	return tok, nil
}
