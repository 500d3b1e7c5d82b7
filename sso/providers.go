package sso

// ProviderDefaults carries the pre-seeded endpoints and claim mapping for a
// built-in provider.
type ProviderDefaults struct {
	Name             string
	Protocol         string
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string
	JwksURL          string
	EndSessionURL    string
	Scopes           []string
	ClaimMapping     map[string]string
}

const (
	ProviderGoogle    = "google"
	ProviderGithub    = "github"
	ProviderMicrosoft = "microsoft"
	ProviderFacebook  = "facebook"
)

var builtinProviders = map[string]ProviderDefaults{
	ProviderGoogle: {
		Name:             ProviderGoogle,
		Protocol:         ProtocolOpenID,
		AuthorizationURL: "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:         "https://oauth2.googleapis.com/token",
		UserInfoURL:      "https://www.googleapis.com/oauth2/v3/userinfo",
		JwksURL:          "https://www.googleapis.com/oauth2/v3/certs",
		Scopes:           []string{"openid", "email", "profile"},
	},
	ProviderGithub: {
		Name:             ProviderGithub,
		Protocol:         ProtocolOAuth2,
		AuthorizationURL: "https://github.com/login/oauth/authorize",
		TokenURL:         "https://github.com/login/oauth/access_token",
		UserInfoURL:      "https://api.github.com/user",
		Scopes:           []string{"read:user", "user:email"},
		ClaimMapping: map[string]string{
			"id":    "id",
			"email": "email",
			"name":  "displayName",
		},
	},
	ProviderMicrosoft: {
		Name:             ProviderMicrosoft,
		Protocol:         ProtocolOpenID,
		AuthorizationURL: "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		TokenURL:         "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		UserInfoURL:      "https://graph.microsoft.com/oidc/userinfo",
		JwksURL:          "https://login.microsoftonline.com/common/discovery/v2.0/keys",
		EndSessionURL:    "https://login.microsoftonline.com/common/oauth2/v2.0/logout",
		Scopes:           []string{"openid", "email", "profile"},
	},
	ProviderFacebook: {
		Name:             ProviderFacebook,
		Protocol:         ProtocolOAuth2,
		AuthorizationURL: "https://www.facebook.com/v18.0/dialog/oauth",
		TokenURL:         "https://graph.facebook.com/v18.0/oauth/access_token",
		UserInfoURL:      "https://graph.facebook.com/me?fields=id,name,email,first_name,last_name",
		Scopes:           []string{"email", "public_profile"},
		ClaimMapping: map[string]string{
			"id":         "id",
			"email":      "email",
			"first_name": "firstname",
			"last_name":  "lastname",
			"name":       "displayName",
		},
	},
}

// IsBuiltinProvider reports whether name is in the built-in catalog.
func IsBuiltinProvider(name string) bool {
	_, ok := builtinProviders[name]
	return ok
}

// BuiltinProvider returns the defaults for a built-in provider.
func BuiltinProvider(name string) (ProviderDefaults, bool) {
	p, ok := builtinProviders[name]
	return p, ok
}

// BuiltinProviders lists the catalog names.
func BuiltinProviders() []string {
	names := make([]string, 0, len(builtinProviders))
	for name := range builtinProviders {
		names = append(names, name)
	}
	return names
}
