package tier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ms-settlement/internal/auth"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"
)

// ProfileClient reads talent stats from the profile service using
// machine-to-machine tokens cached in Redis.
type ProfileClient struct {
	BaseURL    string
	OAuth      models.OAuthClientConfig
	HTTP       *http.Client
	TokenCache *auth.RedisTokenCache
	Log        *logger.Logger
}

func NewProfileClient(baseURL string, oauth models.OAuthClientConfig, tokenCache *auth.RedisTokenCache, log *logger.Logger) *ProfileClient {
	return &ProfileClient{
		BaseURL:    baseURL,
		OAuth:      oauth,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
		TokenCache: tokenCache,
		Log:        log,
	}
}

func (c *ProfileClient) token(ctx context.Context) (string, error) {
	if c.TokenCache != nil {
		cached, err := c.TokenCache.GetToken(ctx)
		if err != nil {
			c.Log.Warn("AUTH", fmt.Sprintf("token cache read failed: %v", err))
		} else if cached.IsValid() {
			return cached.Token, nil
		}
	}

	token, expiresIn, err := auth.GetM2MToken(c.OAuth, c.HTTP)
	if err != nil {
		return "", fmt.Errorf("failed to get M2M token: %w", err)
	}

	if c.TokenCache != nil {
		if err := c.TokenCache.SetToken(ctx, token, expiresIn); err != nil {
			c.Log.Warn("AUTH", fmt.Sprintf("token cache write failed: %v", err))
		}
	}
	return token, nil
}

// TalentStats fetches the classification inputs for one talent.
func (c *ProfileClient) TalentStats(ctx context.Context, talentID string) (*models.TalentStats, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/talents/%s/stats", c.BaseURL, talentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stats request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("profile service returned %s: %s", resp.Status, string(body))
	}

	var stats models.TalentStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode talent stats: %w", err)
	}
	if stats.TalentID == "" {
		stats.TalentID = talentID
	}
	return &stats, nil
}
