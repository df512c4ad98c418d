package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// DefaultEmailAPIURL is the Brevo transactional email endpoint.
const DefaultEmailAPIURL = "https://api.brevo.com/v3/smtp/email"

// ErrEmailNotConfigured is returned when the client has no API key.
var ErrEmailNotConfigured = errors.New("email: API key not configured")

const otpSubject = "crAPI - Verify your new phone number"

var otpBody = template.Must(template.New("otp").Parse(
	`<html><body><p>Hi {{if .Name}}{{.Name}}{{else}}there{{end}},</p>` +
		`<p>Use the following OTP to confirm your new phone number: <b>{{.OTP}}</b></p>` +
		`{{if not .ExpiresAt.IsZero}}<p>The code expires at {{.ExpiresAt.UTC.Format "15:04 MST"}}.</p>{{end}}` +
		`<p>If you did not request this change, you can ignore this email.</p></body></html>`))

// EmailClient sends OTP emails through a Brevo-compatible HTTP API.
type EmailClient struct {
	APIKey      string
	BaseURL     string
	SenderEmail string
	SenderName  string
	HTTPClient  *http.Client
}

// NewEmailClient returns a client for the given API key, endpoint and sender. An empty baseURL uses DefaultEmailAPIURL.
func NewEmailClient(apiKey, baseURL, senderEmail, senderName string) *EmailClient {
	if baseURL == "" {
		baseURL = DefaultEmailAPIURL
	}
	return &EmailClient{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		SenderEmail: senderEmail,
		SenderName:  senderName,
		HTTPClient:  &http.Client{Timeout: defaultTimeout},
	}
}

type emailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendEmailRequest struct {
	Sender      emailAddress   `json:"sender"`
	To          []emailAddress `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

// SendOTP emails the OTP to job.Email. Does not log the OTP.
func (c *EmailClient) SendOTP(ctx context.Context, job OTPJob) error {
	if c.APIKey == "" {
		return ErrEmailNotConfigured
	}
	if err := job.Validate(); err != nil {
		return err
	}
	var html bytes.Buffer
	if err := otpBody.Execute(&html, job); err != nil {
		return fmt.Errorf("email: render: %w", err)
	}
	raw, err := json.Marshal(sendEmailRequest{
		Sender:      emailAddress{Email: c.SenderEmail, Name: c.SenderName},
		To:          []emailAddress{{Email: job.Email, Name: job.Name}},
		Subject:     otpSubject,
		HTMLContent: html.String(),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("email: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("email: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
