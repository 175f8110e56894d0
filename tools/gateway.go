package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GatewayClient talks to the WhatsApp gateway (Evolution-style API). One
// server hosts many instances; the instance name selects the channel identity.
type GatewayClient struct {
	BaseURL string
	ApiKey  string

	httpClient *http.Client
}

func NewGatewayClient(baseURL, apiKey string) *GatewayClient {
	return &GatewayClient{
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		ApiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SendText delivers a text message through the given instance.
func (g *GatewayClient) SendText(ctx context.Context, instance, to, text string) error {
	if g.BaseURL == "" || g.ApiKey == "" {
		return fmt.Errorf("gateway base url or api key not configured")
	}

	url := fmt.Sprintf("%s/message/sendText/%s", g.BaseURL, instance)

	reqBody := map[string]any{
		"number": to,
		"text":   text,
	}
	b, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("apikey", g.ApiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway error: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}
