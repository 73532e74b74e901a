package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// FieldMapping names the userinfo JSON keys holding each profile field.
type FieldMapping struct {
	Email  string
	Name   string
	Avatar string
	// Login is used for the name when Name is empty.
	Login string
}

type UserInfoConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
	// EmailsURL is queried when userinfo carries no email (GitHub hides
	// private addresses from /user).
	EmailsURL string
	Fields    FieldMapping
}

// UserInfoProvider is a plain OAuth2 provider: exchange the code, then read
// the profile from a userinfo endpoint with the access token.
type UserInfoProvider struct {
	cfg    UserInfoConfig
	oauth2 *oauth2.Config
}

func NewUserInfoProvider(cfg UserInfoConfig) (*UserInfoProvider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%s: client_id and client_secret are required", cfg.Name)
	}
	if cfg.Endpoint.TokenURL == "" {
		return nil, fmt.Errorf("%s: token_url is required", cfg.Name)
	}
	if cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("%s: user_info_url is required", cfg.Name)
	}
	if cfg.Fields.Email == "" {
		cfg.Fields.Email = "email"
	}

	return &UserInfoProvider{
		cfg: cfg,
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     cfg.Endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
	}, nil
}

func NewGitHubProvider(clientID, clientSecret, redirectURL string) (*UserInfoProvider, error) {
	return NewUserInfoProvider(UserInfoConfig{
		Name:         "github",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     github.Endpoint,
		UserInfoURL:  "https://api.github.com/user",
		EmailsURL:    "https://api.github.com/user/emails",
		Fields: FieldMapping{
			Email:  "email",
			Name:   "name",
			Avatar: "avatar_url",
			Login:  "login",
		},
	})
}

func (p *UserInfoProvider) Name() string { return p.cfg.Name }

func (p *UserInfoProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s token: %v", ErrExchange, p.cfg.Name, err)
	}
	client := p.oauth2.Client(ctx, token)

	var info map[string]any
	if err := getJSON(ctx, client, p.cfg.UserInfoURL, &info); err != nil {
		return nil, fmt.Errorf("%w: %s userinfo: %v", ErrExchange, p.cfg.Name, err)
	}

	profile := &Profile{
		Email:     stringField(info, p.cfg.Fields.Email),
		Name:      stringField(info, p.cfg.Fields.Name),
		AvatarURL: stringField(info, p.cfg.Fields.Avatar),
	}
	if profile.Name == "" {
		profile.Name = stringField(info, p.cfg.Fields.Login)
	}

	if profile.Email == "" && p.cfg.EmailsURL != "" {
		email, err := p.primaryEmail(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("%w: %s emails: %v", ErrExchange, p.cfg.Name, err)
		}
		profile.Email = email
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoEmail, p.cfg.Name)
	}
	return profile, nil
}

func (p *UserInfoProvider) primaryEmail(ctx context.Context, client *http.Client) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, p.cfg.EmailsURL, &emails); err != nil {
		return "", err
	}
	fallback := ""
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return e.Email, nil
		}
		if fallback == "" {
			fallback = e.Email
		}
	}
	return fallback, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func stringField(data map[string]any, key string) string {
	if key == "" {
		return ""
	}
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}
