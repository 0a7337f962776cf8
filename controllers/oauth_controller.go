package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/cppla/blogapi/config"
	"github.com/cppla/blogapi/models"
	"github.com/cppla/blogapi/utils"
)

// OAuthIdentity is the subset of a provider profile used to sign a user in.
type OAuthIdentity struct {
	ID       string
	Username string
	// Email is empty unless the provider reports it as verified.
	Email string
}

// OAuthProvider pairs an oauth2 client config with the call that reads the signed-in profile.
type OAuthProvider struct {
	Config    *oauth2.Config
	FetchUser func(ctx context.Context, client *http.Client) (*OAuthIdentity, error)
}

// NewOAuthProviders returns the providers that have client credentials configured.
func NewOAuthProviders(cfg config.AppConfig) map[string]OAuthProvider {
	base := strings.TrimRight(cfg.OAuthRedirectBase, "/") + cfg.BasePath
	providers := make(map[string]OAuthProvider)
	if cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "" {
		providers["github"] = OAuthProvider{
			Config: &oauth2.Config{
				ClientID:     cfg.GitHubClientID,
				ClientSecret: cfg.GitHubClientSecret,
				RedirectURL:  fmt.Sprintf("%s/oauth/github/callback", base),
				Scopes:       []string{"read:user", "user:email"},
				Endpoint:     github.Endpoint,
			},
			FetchUser: fetchGitHubUser,
		}
	}
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		providers["google"] = OAuthProvider{
			Config: &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				RedirectURL:  fmt.Sprintf("%s/oauth/google/callback", base),
				Scopes:       []string{"openid", "profile", "email"},
				Endpoint:     google.Endpoint,
			},
			FetchUser: fetchGoogleUser,
		}
	}
	return providers
}

// OAuthController signs users in through third-party providers.
type OAuthController struct {
	auth      *AuthController
	states    *utils.StateStore
	providers map[string]OAuthProvider
}

// NewOAuthController creates an OAuthController. Sessions are issued through auth.
func NewOAuthController(auth *AuthController, states *utils.StateStore, providers map[string]OAuthProvider) *OAuthController {
	return &OAuthController{auth: auth, states: states, providers: providers}
}

func (o *OAuthController) provider(ctx *gin.Context) (OAuthProvider, bool) {
	name := strings.ToLower(ctx.Param("provider"))
	p, ok := o.providers[name]
	if !ok {
		utils.Abort(ctx, utils.ValidationError(40050, "unsupported or unconfigured provider: "+name))
	}
	return p, ok
}

// OAuthRedirect generates a provider-specific authorization URL.
func (o *OAuthController) OAuthRedirect(ctx *gin.Context) {
	p, ok := o.provider(ctx)
	if !ok {
		return
	}

	state, err := o.states.New(ctx.Request.Context())
	if err != nil {
		utils.Abort(ctx, utils.InternalError(50050, "failed to start sign-in", err))
		return
	}

	url := p.Config.AuthCodeURL(state)
	utils.Success(ctx, gin.H{"authorizationUrl": url, "state": state})
}

// OAuthCallback exchanges the authorization code for a user identity and starts a session.
func (o *OAuthController) OAuthCallback(ctx *gin.Context) {
	p, ok := o.provider(ctx)
	if !ok {
		return
	}
	provider := strings.ToLower(ctx.Param("provider"))

	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		utils.Abort(ctx, utils.ValidationError(40051, "missing code or state"))
		return
	}

	reqCtx := ctx.Request.Context()
	valid, err := o.states.Consume(reqCtx, state)
	if err != nil {
		utils.Abort(ctx, utils.InternalError(50051, "failed to verify state", err))
		return
	}
	if !valid {
		utils.Abort(ctx, utils.ValidationError(40052, "invalid or expired state"))
		return
	}

	token, err := p.Config.Exchange(reqCtx, code)
	if err != nil {
		utils.Logger.Warn("oauth code exchange failed", zap.String("provider", provider), zap.Error(err))
		utils.Abort(ctx, utils.ValidationError(40053, "failed to exchange code"))
		return
	}

	identity, err := p.FetchUser(reqCtx, p.Config.Client(reqCtx, token))
	if err != nil {
		utils.Abort(ctx, utils.InternalError(50052, "failed to fetch provider profile", err))
		return
	}
	if identity.ID == "" {
		utils.Abort(ctx, utils.InternalError(50052, "failed to fetch provider profile", errors.New("empty provider id")))
		return
	}

	user, err := o.findOrCreateUser(reqCtx, provider, identity)
	if err != nil {
		if errors.Is(err, errNoVerifiedEmail) {
			utils.Abort(ctx, utils.ValidationError(40054, "provider account has no verified email"))
			return
		}
		utils.Abort(ctx, utils.InternalError(50053, "failed to persist user", err))
		return
	}

	o.auth.startSession(ctx, user)
}

var errNoVerifiedEmail = errors.New("no verified email")

// findOrCreateUser resolves the local account for a provider identity: an existing link,
// then an account with the same verified email, then a new passwordless account.
func (o *OAuthController) findOrCreateUser(ctx context.Context, provider string, id *OAuthIdentity) (*models.User, error) {
	db := o.auth.db.WithContext(ctx)

	var user models.User
	err := db.Where("provider = ? AND provider_id = ?", provider, id.ID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	email := models.NormalizeEmail(id.Email)
	if email == "" {
		return nil, errNoVerifiedEmail
	}

	err = db.Where("email = ?", email).First(&user).Error
	if err == nil {
		if user.Provider == "" {
			if err := db.Model(&user).Updates(map[string]interface{}{
				"provider":    provider,
				"provider_id": id.ID,
			}).Error; err != nil {
				return nil, err
			}
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	_, isAdmin := o.auth.admins[email]
	user = models.User{
		Username:   oauthUsername(id, email),
		Email:      email,
		IsAdmin:    isAdmin,
		Provider:   provider,
		ProviderID: id.ID,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	o.auth.cache.InvalidateByPrefix(ctx, statsCacheKey)
	utils.Logger.Info("user registered", zap.Uint("user_id", user.ID), zap.String("provider", provider))
	return &user, nil
}

func oauthUsername(id *OAuthIdentity, email string) string {
	name := strings.TrimSpace(id.Username)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	if r := []rune(name); len(r) > 64 {
		name = string(r[:64])
	}
	return name
}

const (
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
	googleUserURL   = "https://www.googleapis.com/oauth2/v2/userinfo"
)

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
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
		return fmt.Errorf("request %s failed: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fetchGitHubUser(ctx context.Context, client *http.Client) (*OAuthIdentity, error) {
	var payload struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
	}
	if err := getJSON(ctx, client, githubUserURL, &payload); err != nil {
		return nil, err
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, githubEmailsURL, &emails); err != nil {
		return nil, err
	}

	identity := &OAuthIdentity{ID: fmt.Sprintf("%d", payload.ID), Username: payload.Login}
	for _, e := range emails {
		if e.Primary && e.Verified {
			identity.Email = e.Email
			break
		}
	}
	return identity, nil
}

func fetchGoogleUser(ctx context.Context, client *http.Client) (*OAuthIdentity, error) {
	var payload struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
	}
	if err := getJSON(ctx, client, googleUserURL, &payload); err != nil {
		return nil, err
	}

	identity := &OAuthIdentity{ID: payload.ID, Username: payload.Name}
	if payload.VerifiedEmail {
		identity.Email = payload.Email
	}
	return identity, nil
}
