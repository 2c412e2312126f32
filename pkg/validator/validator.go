// Package validator implements the outbound HTTP collaborator that
// validates a barcode read off a pallet during an Inbound command and
// resolves it to a destination location and gate.
package validator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"shuttlegate/internal/engine"
	"shuttlegate/pkg/apperror"
	"shuttlegate/pkg/cache"
	"shuttlegate/pkg/config"
	"shuttlegate/pkg/logger"
	"shuttlegate/pkg/metrics"
	"shuttlegate/pkg/passhash"
	"shuttlegate/pkg/ratelimit"
)

// rateLimitKey is the single shared ratelimit.Limiter key: the gateway
// treats the collaborator endpoint as one resource, not one per device.
const rateLimitKey = "barcode-validator"

// wireRequest is the JSON body sent to the collaborator.
type wireRequest struct {
	CommandID string `json:"command_id"`
	DeviceID  string `json:"device_id"`
	Barcode   string `json:"barcode"`
}

// wireResponse is the JSON body the collaborator returns.
type wireResponse struct {
	Valid          bool   `json:"valid"`
	Floor          int    `json:"floor"`
	Rail           int    `json:"rail"`
	Block          int    `json:"block"`
	Depth          int    `json:"depth"`
	Gate           int    `json:"gate"`
	EnterDirection string `json:"enter_direction"`
}

// Client is the barcode-validation collaborator: an HTTP call guarded by
// a rate limiter, backed by a response cache, authenticated with a
// short-lived bearer token.
type Client struct {
	http     *http.Client
	baseURL  string
	cache    cache.Cache
	cacheTTL time.Duration
	limiter  ratelimit.Limiter
	jwt      *passhash.JWTManager
}

// New builds a validator client from the application configuration. It
// returns (nil, nil) when the validator is disabled, so callers can skip
// installing it on the coordinator entirely.
func New(cfg config.ValidatorConfig, c cache.Cache, limiter ratelimit.Limiter) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.BaseURL == "" {
		return nil, apperror.NewWithField(apperror.CodeConfig, "barcode validator base_url is required", "base_url")
	}

	jwtManager := passhash.NewJWTManager(&passhash.JWTConfig{
		SecretKey:   cfg.JWTSecret,
		TokenExpiry: cfg.JWTExpiry,
		Issuer:      cfg.JWTIssuer,
	})

	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		baseURL:  cfg.BaseURL,
		cache:    c,
		cacheTTL: cfg.CacheTTL,
		limiter:  limiter,
		jwt:      jwtManager,
	}, nil
}

// Validate implements engine.BarcodeValidator, suitable for installation
// via Coordinator.SetBarcodeValidator.
func (c *Client) Validate(ctx context.Context, req engine.BarcodeValidationRequest) (engine.BarcodeValidationResponse, error) {
	key := cache.BuildValidationKey(req.DeviceID, req.Barcode)

	if cached, ok := c.readCache(ctx, key); ok {
		metrics.Get().RecordValidatorCall("cached", 0)
		return cached, nil
	}

	start := time.Now()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitKey); err != nil {
			metrics.Get().RecordValidatorCall("rate_limited", time.Since(start))
			return engine.BarcodeValidationResponse{}, apperror.Wrap(err, apperror.CodeTimeout, "barcode validator rate limit wait failed")
		}
	}

	resp, err := c.call(ctx, req)
	if err != nil {
		metrics.Get().RecordValidatorCall("error", time.Since(start))
		return engine.BarcodeValidationResponse{}, err
	}

	metrics.Get().RecordValidatorCall("ok", time.Since(start))
	c.writeCache(ctx, key, resp)
	return resp, nil
}

func (c *Client) call(ctx context.Context, req engine.BarcodeValidationRequest) (engine.BarcodeValidationResponse, error) {
	body, err := json.Marshal(wireRequest{CommandID: req.CommandID, DeviceID: req.DeviceID, Barcode: req.Barcode})
	if err != nil {
		return engine.BarcodeValidationResponse{}, apperror.Wrap(err, apperror.CodeInternal, "failed to encode validation request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/validate", bytes.NewReader(body))
	if err != nil {
		return engine.BarcodeValidationResponse{}, apperror.Wrap(err, apperror.CodeInternal, "failed to build validation request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if token, err := c.jwt.GenerateValidatorToken(req.DeviceID, req.CommandID, barcodeHash(req.Barcode)); err == nil {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	} else {
		logger.Log.Warn("failed to sign validator token", "error", err, "device_id", req.DeviceID)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return engine.BarcodeValidationResponse{}, apperror.Wrap(err, apperror.CodeConnectionLost, "barcode validator call failed")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return engine.BarcodeValidationResponse{}, apperror.New(apperror.CodeValidation,
			fmt.Sprintf("barcode validator returned status %d", httpResp.StatusCode))
	}

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return engine.BarcodeValidationResponse{}, apperror.Wrap(err, apperror.CodeInternal, "failed to read validation response")
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return engine.BarcodeValidationResponse{}, apperror.Wrap(err, apperror.CodeInternal, "failed to decode validation response")
	}

	return toDomain(wire), nil
}

func toDomain(wire wireResponse) engine.BarcodeValidationResponse {
	if !wire.Valid {
		return engine.BarcodeValidationResponse{IsValid: false}
	}
	dest := engine.Location{Floor: wire.Floor, Rail: wire.Rail, Block: wire.Block, Depth: wire.Depth}
	direction := engine.Bottom
	if wire.EnterDirection == string(engine.Top) {
		direction = engine.Top
	}
	return engine.BarcodeValidationResponse{
		IsValid:        true,
		Destination:    &dest,
		Gate:           wire.Gate,
		EnterDirection: direction,
	}
}

func (c *Client) readCache(ctx context.Context, key string) (engine.BarcodeValidationResponse, bool) {
	if c.cache == nil {
		return engine.BarcodeValidationResponse{}, false
	}
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		return engine.BarcodeValidationResponse{}, false
	}
	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return engine.BarcodeValidationResponse{}, false
	}
	return toDomain(wire), true
}

func (c *Client) writeCache(ctx context.Context, key string, resp engine.BarcodeValidationResponse) {
	if c.cache == nil {
		return
	}
	wire := wireResponse{Valid: resp.IsValid}
	if resp.IsValid && resp.Destination != nil {
		wire.Floor, wire.Rail, wire.Block, wire.Depth = resp.Destination.Floor, resp.Destination.Rail, resp.Destination.Block, resp.Destination.Depth
		wire.Gate = resp.Gate
		wire.EnterDirection = string(resp.EnterDirection)
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.cacheTTL); err != nil {
		logger.Log.Warn("failed to cache barcode validation response", "error", err)
	}
}

func barcodeHash(barcode string) string {
	sum := sha256.Sum256([]byte(barcode))
	return hex.EncodeToString(sum[:])
}
