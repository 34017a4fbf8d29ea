package credentials

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// AssistantScope 是 Assistant SDK 所需的 OAuth2 scope。
const AssistantScope = "https://www.googleapis.com/auth/assistant-sdk-prototype"

// AuthorizedUser 对应 google-oauthlib-tool 保存的凭证文件。
type AuthorizedUser struct {
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
}

// Load 读取并校验凭证文件。
func Load(path string) (*AuthorizedUser, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read credentials %s", path)
	}

	var user AuthorizedUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, errors.Wrapf(err, "decode credentials %s", path)
	}

	if strings.TrimSpace(user.RefreshToken) == "" {
		return nil, errors.Errorf("credentials %s: refresh_token is required", path)
	}
	if strings.TrimSpace(user.ClientID) == "" || strings.TrimSpace(user.ClientSecret) == "" {
		return nil, errors.Errorf("credentials %s: client_id and client_secret are required", path)
	}

	return &user, nil
}

// OAuthConfig 返回用于刷新令牌的 oauth2 配置。
func (u *AuthorizedUser) OAuthConfig() *oauth2.Config {
	endpoint := google.Endpoint
	if u.TokenURI != "" {
		endpoint.TokenURL = u.TokenURI
	}

	scopes := u.Scopes
	if len(scopes) == 0 {
		scopes = []string{AssistantScope}
	}

	return &oauth2.Config{
		ClientID:     u.ClientID,
		ClientSecret: u.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
}

// Holder keeps a refreshable credential for the lifetime of the process.
type Holder struct {
	source oauth2.TokenSource
}

// NewHolder builds the token source and refreshes it once so that a rejected
// refresh token fails at startup instead of on the first exchange.
//
// ctx is retained by the token source for later refreshes and must outlive the process.
func NewHolder(ctx context.Context, user *AuthorizedUser) (*Holder, error) {
	if user == nil {
		return nil, errors.New("credentials not loaded")
	}

	// The stored access token is ignored; a fresh one is minted from the refresh token.
	seed := &oauth2.Token{RefreshToken: user.RefreshToken}
	source := user.OAuthConfig().TokenSource(ctx, seed)

	if _, err := source.Token(); err != nil {
		return nil, errors.Wrap(err, "refresh credentials")
	}

	return &Holder{source: source}, nil
}

// TokenSource returns the shared, auto-refreshing token source.
func (h *Holder) TokenSource() oauth2.TokenSource {
	return h.source
}
