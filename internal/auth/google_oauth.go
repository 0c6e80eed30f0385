package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/hitoshi/rhythmflow/internal/model"
)

// Googleのエンドポイント。テストではGoogleOAuthConfigで差し替える。
const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// maxUserInfoBytes はuserinfo応答の読み取り上限。
const maxUserInfoBytes = 1 << 20

var errEmailNotVerified = errors.New("google account email is not verified")

// GoogleOAuthConfig はGoogleログインの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// GoogleOAuthProvider はGoogleアカウントでのログインを提供する。
// プロフィールの表示名と写真はGoogleアカウントの値で初期化する。
type GoogleOAuthProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	endpoint := oauth2.Endpoint{
		AuthURL:   orDefault(config.AuthURL, googleAuthURL),
		TokenURL:  orDefault(config.TokenURL, googleTokenURL),
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return &GoogleOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoint,
		},
		userInfoURL: orDefault(config.UserInfoURL, googleUserInfoURL),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// GetLoginURL はstateを埋め込んだGoogleの同意画面URLを返す。
func (p *GoogleOAuthProvider) GetLoginURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// ExchangeCode は認可コードをトークンに交換し、Googleアカウントの情報を返す。
// メールアドレスが未確認のアカウントは拒否する。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange google code: %w", err)
	}

	info, err := p.fetchUserInfo(ctx, p.oauth.Client(ctx, token))
	if err != nil {
		return nil, err
	}
	if !info.EmailVerified {
		return nil, errEmailNotVerified
	}

	return &OAuthUserInfo{
		Provider:       model.ProviderGoogle,
		ProviderUserID: info.Sub,
		Email:          info.Email,
		Name:           info.Name,
		PhotoURL:       info.Picture,
	}, nil
}

func (p *GoogleOAuthProvider) fetchUserInfo(ctx context.Context, client *http.Client) (*googleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch google userinfo: %w", err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxUserInfoBytes)
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(body)
		return nil, fmt.Errorf("google userinfo status %d: %s", resp.StatusCode, detail)
	}

	var info googleUserInfo
	if err := json.NewDecoder(body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode google userinfo: %w", err)
	}
	if info.Sub == "" {
		return nil, errors.New("google userinfo has no sub")
	}
	return &info, nil
}

var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
