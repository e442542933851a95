// Package notify posts backup run summaries to chat and webhook targets.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rowjay/mybak/internal/config"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Event describes one finished mybak run.
type Event struct {
	RunID     string    `json:"run_id"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Root      string    `json:"root"`
	DryRun    bool      `json:"dry_run,omitempty"`
	Artifacts []string  `json:"artifacts,omitempty"`
	Pruned    []string  `json:"pruned,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Duration  string    `json:"duration"`
	Error     string    `json:"error,omitempty"`
}

// Summary is the one-line text form used by chat targets.
func (e Event) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Status, e.Message)
	if len(e.Artifacts) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Artifacts, ", "))
	}
	if e.Error != "" {
		fmt.Fprintf(&b, " (%s)", e.Error)
	}
	return b.String()
}

func StatusFromErr(err error) string {
	if err == nil {
		return StatusSuccess
	}
	return StatusFailed
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Multi fans an event out to every target and joins their errors.
type Multi struct {
	Targets []Notifier
}

func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, target := range m.Targets {
		if target == nil {
			continue
		}
		if err := target.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Webhook struct {
	Name    string
	URL     string
	Headers map[string]string
	Client  *http.Client
}

func (w Webhook) Notify(ctx context.Context, event Event) error {
	return post(ctx, w.Client, "webhook "+w.Name, w.URL, w.Headers, event)
}

type Mattermost struct {
	Name   string
	URL    string
	Client *http.Client
}

func (m Mattermost) Notify(ctx context.Context, event Event) error {
	payload := map[string]string{"text": event.Summary()}
	return post(ctx, m.Client, "mattermost "+m.Name, m.URL, nil, payload)
}

type Matrix struct {
	Name        string
	ServerURL   string
	AccessToken string
	RoomID      string
	Client      *http.Client
}

func (m Matrix) Notify(ctx context.Context, event Event) error {
	endpoint := fmt.Sprintf("%s/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		strings.TrimRight(m.ServerURL, "/"), url.PathEscape(m.RoomID), uuid.NewString())
	payload := map[string]any{
		"msgtype": "m.text",
		"body":    event.Summary(),
	}
	headers := map[string]string{"Authorization": "Bearer " + m.AccessToken}
	return postMethod(ctx, m.Client, http.MethodPut, "matrix "+m.Name, endpoint, headers, payload)
}

func FromConfig(cfg config.NotificationsConfig) Multi {
	var targets []Notifier
	for _, w := range cfg.Webhooks {
		targets = append(targets, Webhook{Name: w.Name, URL: w.URL, Headers: w.Headers})
	}
	for _, mm := range cfg.Mattermost {
		targets = append(targets, Mattermost{Name: mm.Name, URL: mm.URL})
	}
	for _, mx := range cfg.Matrix {
		targets = append(targets, Matrix{Name: mx.Name, ServerURL: mx.ServerURL, AccessToken: mx.AccessToken, RoomID: mx.RoomID})
	}
	return Multi{Targets: targets}
}

func post(ctx context.Context, client *http.Client, target, endpoint string, headers map[string]string, payload any) error {
	return postMethod(ctx, client, http.MethodPost, target, endpoint, headers, payload)
}

func postMethod(ctx context.Context, client *http.Client, method, target, endpoint string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if client == nil {
		client = httpClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %s", target, resp.Status)
	}
	return nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
