package gateway

import (
	"bytes"
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

// Client is the settlement service's HTTP client for the gateway service.
// Charge calls carry an M2M bearer token; the gateway reads the subject
// claim for audit logging.
type Client struct {
	BaseURL    string
	OAuth      models.OAuthClientConfig
	HTTP       *http.Client
	TokenCache *auth.RedisTokenCache
	Log        *logger.Logger
}

func NewClient(baseURL string, oauth models.OAuthClientConfig, cache *auth.RedisTokenCache, log *logger.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		OAuth:      oauth,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
		TokenCache: cache,
		Log:        log,
	}
}

func (c *Client) token(ctx context.Context) (string, error) {
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

type chargeEnvelope struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Data    *models.ChargeResult `json:"data"`
	Error   string               `json:"error"`
}

func (c *Client) CreateCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/gateway/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	var envelope chargeEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		c.Log.Error("GATEWAY", fmt.Sprintf("charge for booking %s rejected: %s %s", req.BookingID, envelope.Message, envelope.Error))
		return nil, fmt.Errorf("gateway rejected charge: %s", envelope.Message)
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("gateway returned no charge result")
	}

	c.Log.LogGateway("CHARGE", envelope.Data.GatewayRef, fmt.Sprintf("booking %s status %s", req.BookingID, envelope.Data.Status))
	return envelope.Data, nil
}
