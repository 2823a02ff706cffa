package oauth

import (
	"fmt"

	"github.com/creativeprojects/courier/cfg"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

type preset struct {
	endpoint oauth2.Endpoint
	scopes   []string
}

var presets = map[string]preset{
	"google": {
		endpoint: endpoints.Google,
		scopes:   []string{"https://mail.google.com/"},
	},
	"microsoft": {
		endpoint: endpoints.AzureAD("common"),
		scopes: []string{
			"https://outlook.office.com/IMAP.AccessAsUser.All",
			"https://outlook.office.com/SMTP.Send",
			"offline_access",
		},
	},
	"yahoo": {
		endpoint: endpoints.Yahoo,
		scopes:   []string{"mail-w"},
	},
}

// NewConfig builds the client configuration from a provider preset, or from custom endpoints
func NewConfig(settings cfg.OAuth2) (*oauth2.Config, error) {
	config := &oauth2.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		RedirectURL:  settings.RedirectURL,
		Scopes:       settings.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  settings.AuthURL,
			TokenURL: settings.TokenURL,
		},
	}
	if settings.Provider != "" {
		p, found := presets[settings.Provider]
		if !found {
			return nil, fmt.Errorf("unknown oauth2 provider %q", settings.Provider)
		}
		if config.Endpoint.AuthURL == "" {
			config.Endpoint.AuthURL = p.endpoint.AuthURL
		}
		if config.Endpoint.TokenURL == "" {
			config.Endpoint.TokenURL = p.endpoint.TokenURL
		}
		if len(config.Scopes) == 0 {
			config.Scopes = p.scopes
		}
	}
	if config.Endpoint.AuthURL == "" || config.Endpoint.TokenURL == "" {
		return nil, fmt.Errorf("oauth2 endpoints are missing")
	}
	return config, nil
}
