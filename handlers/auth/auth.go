package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Indrakargaurav/codeweave/core"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

var (
	loginHandler    http.HandlerFunc
	callbackHandler http.HandlerFunc

	jwtSecret []byte
)

// AppClaims is the JWT payload. Subject is the stable account identity the
// room engine trusts for ownership checks.
type AppClaims struct {
	jwt.RegisteredClaims
	Login     string `json:"login"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl"`
	Name      string `json:"name"`
}

// InitAuth picks the identity provider from the environment: OIDC when
// configured, GitHub OAuth otherwise.
func InitAuth() {
	jwtSecret = []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		logrus.Warn("JWT_SECRET is not set. Authentication will not work.")
	}

	switch {
	case os.Getenv("OIDC_ISSUER_URL") != "" && os.Getenv("OIDC_CLIENT_ID") != "":
		logrus.Info("Initializing OIDC authentication provider.")
		initOIDC()
	case os.Getenv("GITHUB_CLIENT_ID") != "" && os.Getenv("GITHUB_CLIENT_SECRET") != "":
		logrus.Info("Initializing GitHub authentication provider.")
		initGitHub()
	default:
		logrus.Warn("No authentication provider configured.")
		unconfigured := func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Authentication not configured", http.StatusInternalServerError)
		}
		loginHandler = unconfigured
		callbackHandler = unconfigured
	}
}

func HandleLogin(w http.ResponseWriter, r *http.Request) {
	loginHandler(w, r)
}

func HandleCallback(w http.ResponseWriter, r *http.Request) {
	callbackHandler(w, r)
}

func stateCookie(w http.ResponseWriter, name string) string {
	b := make([]byte, 16)
	rand.Read(b)
	state := hex.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
	})
	return state
}

func initGitHub() {
	conf := &oauth2.Config{
		ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("GITHUB_REDIRECT_URL"),
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     github.Endpoint,
	}

	loginHandler = func(w http.ResponseWriter, r *http.Request) {
		state := stateCookie(w, "oauthstate")
		http.Redirect(w, r, conf.AuthCodeURL(state), http.StatusTemporaryRedirect)
	}

	callbackHandler = func(w http.ResponseWriter, r *http.Request) {
		token, err := conf.Exchange(r.Context(), r.FormValue("code"))
		if err != nil {
			logrus.Errorf("failed to exchange token: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		resp, err := conf.Client(r.Context(), token).Get("https://api.github.com/user")
		if err != nil {
			logrus.Errorf("failed to get user from github: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			logrus.Errorf("failed to read github response body: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		var githubUser struct {
			ID        int64  `json:"id"`
			Login     string `json:"login"`
			AvatarURL string `json:"avatar_url"`
			Name      string `json:"name"`
		}
		if err := json.Unmarshal(body, &githubUser); err != nil {
			logrus.Errorf("failed to unmarshal github user: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		issueAndRedirect(w, r, &core.User{
			Subject:   fmt.Sprintf("github:%d", githubUser.ID),
			Login:     githubUser.Login,
			AvatarURL: githubUser.AvatarURL,
			Name:      githubUser.Name,
		})
	}
}

func initOIDC() {
	providerURL := os.Getenv("OIDC_ISSUER_URL")
	clientID := os.Getenv("OIDC_CLIENT_ID")

	provider, err := oidc.NewProvider(context.Background(), providerURL)
	if err != nil {
		logrus.Errorf("Failed to create OIDC provider: %s", err.Error())
		return
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("OIDC_REDIRECT_URL"),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		Endpoint:     provider.Endpoint(),
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})

	loginHandler = func(w http.ResponseWriter, r *http.Request) {
		state := stateCookie(w, "oidc_state")
		http.Redirect(w, r, conf.AuthCodeURL(state, oauth2.AccessTypeOffline), http.StatusTemporaryRedirect)
	}

	callbackHandler = func(w http.ResponseWriter, r *http.Request) {
		token, err := conf.Exchange(r.Context(), r.FormValue("code"))
		if err != nil {
			logrus.Errorf("failed to exchange token: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		rawIDToken, ok := token.Extra("id_token").(string)
		if !ok {
			logrus.Error("no id_token in token response")
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		idToken, err := verifier.Verify(r.Context(), rawIDToken)
		if err != nil {
			logrus.Errorf("failed to verify ID token: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		var claims struct {
			Email             string `json:"email"`
			Name              string `json:"name"`
			PreferredUsername string `json:"preferred_username"`
			Picture           string `json:"picture"`
			Sub               string `json:"sub"`
		}
		if err := idToken.Claims(&claims); err != nil {
			logrus.Errorf("failed to extract claims from ID token: %s", err.Error())
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		login := claims.PreferredUsername
		if login == "" {
			login = claims.Email
		}
		issueAndRedirect(w, r, &core.User{
			Subject:   claims.Sub,
			Login:     login,
			Email:     claims.Email,
			AvatarURL: claims.Picture,
			Name:      claims.Name,
		})
	}
}

func issueAndRedirect(w http.ResponseWriter, r *http.Request, user *core.User) {
	token, err := CreateJWT(user)
	if err != nil {
		logrus.Errorf("failed to create JWT: %s", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/?token=%s", token), http.StatusTemporaryRedirect)
}

func CreateJWT(user *core.User) (string, error) {
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 24 * 7)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Login:     user.Login,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		Name:      user.Name,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ParseJWT(tokenString string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*AppClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
