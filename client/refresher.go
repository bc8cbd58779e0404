package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPRefresher calls the refresh endpoint directly, bypassing Client.Do.
type HTTPRefresher struct {
	Endpoint string
	HTTP     *http.Client
}

type refreshRequest struct {
	Token string `json:"token"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

func (r tokenResponse) toToken() Token {
	return Token{Value: r.Token, ExpiresAt: time.UnixMilli(r.ExpiresAt)}
}

// Refresh posts {token} and expects {token, expiresAt} with expiresAt in unix milliseconds.
func (r *HTTPRefresher) Refresh(ctx context.Context, token string) (Token, error) {
	body, err := json.Marshal(refreshRequest{Token: token})
	if err != nil {
		return Token{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	hc := r.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Token{}, decodeAPIError(resp)
	}

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Token{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if out.Token == "" {
		return Token{}, fmt.Errorf("refresh response missing token")
	}
	return out.toToken(), nil
}
