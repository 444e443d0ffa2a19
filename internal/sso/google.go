// Package sso handles third-party identity federation over OAuth2.
package sso

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// ErrUnverifiedEmail rejects identities whose provider has not confirmed
// ownership of the address.
var ErrUnverifiedEmail = errors.New("sso: provider email not verified")

// Identity is the subset of the provider's user info the auth service
// needs to sign a federated principal in.
type Identity struct {
	Email     string
	FirstName string
	LastName  string
}

// Config holds the OAuth2 client settings for one provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

// Google endpoints; the zero-value URLs of Config fall back to these.
const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// Provider drives the authorization-code flow against one OAuth2 provider.
type Provider struct {
	oauth2Config *oauth2.Config
	userInfoURL  string
}

// NewProvider builds a Provider. Endpoint URLs default to Google's.
func NewProvider(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("sso: client id and secret are required")
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, errors.New("sso: redirect url is required")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = googleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = googleTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = googleUserInfoURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile"}
	}
	return &Provider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			Scopes: cfg.Scopes,
		},
		userInfoURL: cfg.UserInfoURL,
	}, nil
}

// AuthCodeURL returns the provider URL to redirect the browser to.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades the callback code for a token and fetches the user info.
func (p *Provider) Exchange(ctx context.Context, code string) (Identity, error) {
	if strings.TrimSpace(code) == "" {
		return Identity{}, errors.New("sso: missing authorization code")
	}
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("sso: exchange code: %w", err)
	}

	client := p.oauth2Config.Client(ctx, token)
	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return Identity{}, fmt.Errorf("sso: fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Identity{}, fmt.Errorf("sso: user info request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var info struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Name          string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Identity{}, fmt.Errorf("sso: decode user info: %w", err)
	}
	if info.Email == "" {
		return Identity{}, errors.New("sso: missing email in provider response")
	}
	if !info.EmailVerified {
		return Identity{}, ErrUnverifiedEmail
	}

	first, last := info.GivenName, info.FamilyName
	if first == "" && info.Name != "" {
		first, last, _ = strings.Cut(info.Name, " ")
	}
	return Identity{Email: info.Email, FirstName: first, LastName: last}, nil
}
