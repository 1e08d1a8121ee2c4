package config

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	identityModeVar = "IDP_MODE"
	issuerVar       = "IDP_ISSUER"
	clientIDVar     = "IDP_CLIENT_ID"
	clientSecretVar = "IDP_CLIENT_SECRET"
	adminTokenVar   = "IDP_ADMIN_TOKEN"
)

// Identity provider modes
const (
	IdentityModeOIDC   = "oidc"
	IdentityModeMemory = "memory"
)

type Identity struct {
	v *viper.Viper
}

var _ IdentityConfig = Identity{}

func (i Identity) GetIdentityMode() string {
	return strings.ToLower(i.v.GetString(identityModeVar))
}

// GetIssuerURL returns the OIDC issuer used for discovery (e.g., "https://auth.example.com")
func (i Identity) GetIssuerURL() string {
	return strings.TrimRight(i.v.GetString(issuerVar), "/")
}

func (i Identity) GetClientID() string {
	return i.v.GetString(clientIDVar)
}

func (i Identity) GetClientSecret() string {
	return i.v.GetString(clientSecretVar)
}

// GetAdminToken returns the service credential used for privileged calls such as
// deleting an account after a failed sign-up.
func (i Identity) GetAdminToken() string {
	return i.v.GetString(adminTokenVar)
}
