package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/sells-group/siteselect/internal/config"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleIdentity is the profile returned by the userinfo endpoint.
type GoogleIdentity struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// IdentityProvider exchanges an authorization code for a user profile.
type IdentityProvider interface {
	AuthURL(state string) string
	Identity(ctx context.Context, code string) (*GoogleIdentity, error)
}

// Google is the OAuth2 authorization-code client for Google sign-in.
type Google struct {
	conf        *oauth2.Config
	userInfoURL string
}

// GoogleOption configures a Google client.
type GoogleOption func(*Google)

// WithEndpoint overrides the OAuth2 endpoints.
func WithEndpoint(ep oauth2.Endpoint) GoogleOption {
	return func(g *Google) { g.conf.Endpoint = ep }
}

// WithUserInfoURL overrides the profile endpoint.
func WithUserInfoURL(u string) GoogleOption {
	return func(g *Google) { g.userInfoURL = u }
}

// NewGoogle creates a Google client from config.
func NewGoogle(cfg config.GoogleConfig, opts ...GoogleOption) *Google {
	g := &Google{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoints.Google,
		},
		userInfoURL: googleUserInfoURL,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// AuthURL returns the consent page URL.
func (g *Google) AuthURL(state string) string {
	return g.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Identity exchanges the code and fetches the user's profile.
func (g *Google) Identity(ctx context.Context, code string) (*GoogleIdentity, error) {
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return nil, eris.Wrap(err, "auth: google code exchange")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "auth: google userinfo request")
	}
	resp, err := g.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "auth: google userinfo")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("auth: google userinfo: status %d", resp.StatusCode)
	}

	var id GoogleIdentity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, eris.Wrap(err, "auth: decode google userinfo")
	}
	if strings.TrimSpace(id.Email) == "" {
		return nil, eris.New("auth: google profile has no email")
	}
	return &id, nil
}
