package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"studyline/internal/engine"
)

// registerBilling exposes the payment gateway webhook. The gateway signs the
// raw body with HMAC-SHA256; a bad signature is rejected, an unknown event
// type is acknowledged so the gateway stops retrying.
func registerBilling(api huma.API, e engine.Engine, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "billing-webhook",
		Method:      http.MethodPost,
		Path:        "/billing/webhook",
		Summary:     "Payment gateway webhook",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Signature string `header:"X-Gateway-Signature"`
		Body      engine.GatewayEvent `json:"body"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		raw := bodyBytes(ctx)
		if len(raw) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if !verifyGatewaySignature(raw, input.Signature, auth.GatewaySecret) {
			return nil, newAPIError(http.StatusUnauthorized, "invalid_signature", "invalid webhook signature", nil)
		}
		var evt engine.GatewayEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid webhook payload", nil)
		}
		handled, err := e.HandleGatewayEvent(ctx, evt)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{"received": true, "handled": handled}}, nil
	})
}

func verifyGatewaySignature(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
