package oidcprovider

import (
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Config describes an OIDC identity provider. Sign-up and account deletion
// are not covered by OIDC; they use the GoTrue style REST endpoints below,
// which default to paths under the issuer.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// AdminToken authorizes DeleteUser
	AdminToken string

	// SignUpURL defaults to {issuer}/signup
	SignUpURL string

	// AdminUsersURL defaults to {issuer}/admin/users
	AdminUsersURL string

	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	c.IssuerURL = strings.TrimRight(c.IssuerURL, "/")
	if len(c.Scopes) == 0 {
		c.Scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}
	if c.SignUpURL == "" {
		c.SignUpURL = c.IssuerURL + "/signup"
	}
	if c.AdminUsersURL == "" {
		c.AdminUsersURL = c.IssuerURL + "/admin/users"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	return c
}
