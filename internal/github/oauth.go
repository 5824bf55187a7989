package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// oauthState is carried through GitHub in the state parameter. MAC binds the
// user id to this server's client secret.
type oauthState struct {
	Random string `json:"random"`
	UserID string `json:"user_id"`
	MAC    string `json:"mac,omitempty"`
}

// OAuth wraps the GitHub web application flow.
type OAuth struct {
	config *oauth2.Config
	client *http.Client
	secret []byte
}

// NewOAuth builds the flow from cfg.
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
		secret: []byte(cfg.ClientSecret),
	}
}

func (o *OAuth) ctx(ctx context.Context) context.Context {
	if o.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, o.client)
}

func (o *OAuth) mac(random, userID string) string {
	h := hmac.New(sha256.New, o.secret)
	h.Write([]byte(random + "." + userID))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// EncodeState returns a state value naming userID.
func (o *OAuth) EncodeState(userID string) string {
	st := oauthState{Random: store.NewID(), UserID: userID}
	if len(o.secret) > 0 {
		st.MAC = o.mac(st.Random, st.UserID)
	}
	buf, _ := json.Marshal(st)
	return base64.URLEncoding.EncodeToString(buf)
}

// DecodeState returns the user id carried by state.
func (o *OAuth) DecodeState(state string) (string, error) {
	buf, err := base64.URLEncoding.DecodeString(state)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	var st oauthState
	if err := json.Unmarshal(buf, &st); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if st.UserID == "" || st.Random == "" {
		return "", ErrInvalidState
	}
	if len(o.secret) > 0 && !hmac.Equal([]byte(st.MAC), []byte(o.mac(st.Random, st.UserID))) {
		return "", ErrInvalidState
	}
	return st.UserID, nil
}

// AuthCodeURL returns the GitHub consent URL for userID.
func (o *OAuth) AuthCodeURL(userID string) string {
	return o.config.AuthCodeURL(o.EncodeState(userID))
}

// Exchange trades an authorization code for a token.
func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := o.config.Exchange(o.ctx(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}
	return tok, nil
}

// Client returns an HTTP client that authenticates as token.
func (o *OAuth) Client(ctx context.Context, token string) *http.Client {
	return oauth2.NewClient(o.ctx(ctx), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}
