package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	"github.com/iliyamo/shipping-auth/internal/service"
)

const facebookUserInfoURL = "https://graph.facebook.com/me?fields=id,name,email"

// OAuth2Provider covers plain OAuth2 providers that expose the profile at a
// userinfo URL instead of issuing an ID token.
type OAuth2Provider struct {
	name        string
	oauth2      *oauth2.Config
	userInfoURL string
	// trustEmail marks provider-reported addresses as verified. Only set it
	// for providers that return confirmed addresses exclusively.
	trustEmail bool
}

// NewFacebookProvider builds the Graph API provider. Facebook only returns
// the primary confirmed address, so its emails are trusted for merging.
func NewFacebookProvider(clientID, clientSecret, redirectURL string) *OAuth2Provider {
	return &OAuth2Provider{
		name: "facebook",
		oauth2: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     facebook.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{"email", "public_profile"},
		},
		userInfoURL: facebookUserInfoURL,
		trustEmail:  true,
	}
}

func (p *OAuth2Provider) Name() string { return p.name }

func (p *OAuth2Provider) AuthCodeURL(state string) string {
	return p.oauth2.AuthCodeURL(state)
}

type profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (p *OAuth2Provider) Exchange(ctx context.Context, code string) (service.ExternalIdentity, error) {
	if code == "" {
		return service.ExternalIdentity{}, errors.New("missing authorization code")
	}
	tok, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return service.ExternalIdentity{}, fmt.Errorf("exchange %s code: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return service.ExternalIdentity{}, err
	}
	resp, err := p.oauth2.Client(ctx, tok).Do(req)
	if err != nil {
		return service.ExternalIdentity{}, fmt.Errorf("fetch %s profile: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return service.ExternalIdentity{}, fmt.Errorf("%s profile request failed with status %d: %s", p.name, resp.StatusCode, body)
	}
	var prof profile
	if err := json.NewDecoder(resp.Body).Decode(&prof); err != nil {
		return service.ExternalIdentity{}, fmt.Errorf("decode %s profile: %w", p.name, err)
	}
	if prof.ID == "" {
		return service.ExternalIdentity{}, fmt.Errorf("%s profile has no id", p.name)
	}
	return service.ExternalIdentity{
		Provider:      p.name,
		Subject:       prof.ID,
		Email:         prof.Email,
		Name:          prof.Name,
		EmailVerified: p.trustEmail && prof.Email != "",
	}, nil
}
