package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twitchTokenURL = "https://id.twitch.tv/oauth2/token"

// RefreshedToken is a new token pair obtained from Twitch, with the absolute
// unix time the access token expires.
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	Expiry       int64
}

// TokenRefresher exchanges a refresh token for a fresh access token. Swapped
// out in tests.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*RefreshedToken, error)
}

// TwitchRefresher refreshes user tokens against the Twitch OAuth endpoint
// with the application's client credentials.
type TwitchRefresher struct {
	clientID     string
	clientSecret string
	client       *http.Client
}

func NewTwitchRefresher(clientID, clientSecret string) *TwitchRefresher {
	return &TwitchRefresher{
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *TwitchRefresher) Refresh(ctx context.Context, refreshToken string) (*RefreshedToken, error) {
	if r.clientID == "" || r.clientSecret == "" {
		return nil, errors.New("twitch client credentials are not configured")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", r.clientID)
	form.Set("client_secret", r.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, twitchTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitch token endpoint returned %d", resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.AccessToken == "" {
		return nil, errors.New("twitch token response carried no access token")
	}
	return &RefreshedToken{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		Expiry:       time.Now().Unix() + body.ExpiresIn,
	}, nil
}
