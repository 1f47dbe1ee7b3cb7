package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// SecretHeader carries the shared secret on every webhook request.
const SecretHeader = "X-Usage-Tracker-Secret"

// WebhookConfig configures a [Webhook].
type WebhookConfig struct {
	// URL receives notifications; URL + "/permission" serves the permission
	// state. Empty disables native delivery.
	URL     string
	Secret  string
	Icon    string
	Timeout time.Duration
	Retries int
}

// Webhook is a [Native] backend that posts notifications to a local
// endpoint such as a tray helper or the host application.
type Webhook struct {
	url    string
	secret string
	icon   string
	client *retryablehttp.Client
	newID  func() string
}

// webhookPayload is the JSON body of a notification POST.
type webhookPayload struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Level string `json:"level"`
}

type permissionPayload struct {
	Permission string `json:"permission"`
}

// NewWebhook builds a Webhook from cfg.
func NewWebhook(cfg WebhookConfig) *Webhook {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.Retries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	client.Logger = nil // suppress retryablehttp's default logging

	return &Webhook{
		url:    strings.TrimRight(cfg.URL, "/"),
		secret: cfg.Secret,
		icon:   cfg.Icon,
		client: client,
		newID:  func() string { return uuid.New().String() },
	}
}

// Supported reports whether an endpoint is configured.
func (w *Webhook) Supported() bool { return w.url != "" }

// Permission asks the endpoint for the current permission state.
func (w *Webhook) Permission(ctx context.Context) (Permission, error) {
	return w.permission(ctx, http.MethodGet)
}

// RequestPermission asks the endpoint to prompt the user.
func (w *Webhook) RequestPermission(ctx context.Context) (Permission, error) {
	return w.permission(ctx, http.MethodPost)
}

func (w *Webhook) permission(ctx context.Context, method string) (Permission, error) {
	if !w.Supported() {
		return PermissionDefault, ErrUnsupported
	}
	resp, err := w.do(ctx, method, w.url+"/permission", nil)
	if err != nil {
		return PermissionDefault, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PermissionDefault, fmt.Errorf("permission endpoint: HTTP %d", resp.StatusCode)
	}
	var p permissionPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return PermissionDefault, fmt.Errorf("decode permission: %w", err)
	}
	return ParsePermission(p.Permission), nil
}

// Send posts msg. A 403 from the endpoint is reported as
// [ErrPermissionDenied].
func (w *Webhook) Send(ctx context.Context, msg Message) error {
	if !w.Supported() {
		return ErrUnsupported
	}
	body, err := json.Marshal(webhookPayload{
		ID:    w.newID(),
		Title: msg.Title,
		Body:  msg.Body,
		Icon:  w.icon,
		Level: string(msg.Level),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	resp, err := w.do(ctx, http.MethodPost, w.url, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return ErrPermissionDenied
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("notification endpoint: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (w *Webhook) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if w.secret != "" {
		req.Header.Set(SecretHeader, w.secret)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	return resp, nil
}
