package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// EmailTransport delivers one email
type EmailTransport interface {
	Send(ctx context.Context, to, subject, html string) error
}

// MessageTransport delivers one text message
type MessageTransport interface {
	Send(ctx context.Context, to, body string) error
}

// EmailClient sends through an HTTP email API keyed by bearer API key
type EmailClient struct {
	apiURL string
	apiKey string
	from   string
	client *http.Client
}

func NewEmailClient(apiURL, apiKey, from string) *EmailClient {
	return &EmailClient{
		apiURL: apiURL,
		apiKey: apiKey,
		from:   from,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *EmailClient) Send(ctx context.Context, to, subject, html string) error {
	payload, _ := json.Marshal(map[string]string{
		"from":    e.from,
		"to":      to,
		"subject": subject,
		"html":    html,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("email send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("email API returned %d", resp.StatusCode)
	}
	return nil
}

// WhatsAppClient sends through a messaging API with account-SID basic auth
type WhatsAppClient struct {
	apiURL string
	sid    string
	token  string
	from   string
	client *http.Client
}

func NewWhatsAppClient(apiURL, sid, token, from string) *WhatsAppClient {
	return &WhatsAppClient{
		apiURL: apiURL,
		sid:    sid,
		token:  token,
		from:   from,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WhatsAppClient) Send(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("From", "whatsapp:"+w.from)
	form.Set("To", "whatsapp:"+to)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(w.sid, w.token)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("whatsapp API returned %d", resp.StatusCode)
	}
	return nil
}
