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
)

const (
	brevoEmailURL = "https://api.brevo.com/v3/smtp/email"
	brevoSMSURL   = "https://api.brevo.com/v3/transactionalSMS/sms"
)

// Brevo sends transactional email and SMS through the Brevo REST API.
type Brevo struct {
	apiKey      string
	emailSender string
	smsSender   string
	httpClient  *http.Client
}

func NewBrevo(apiKey, emailSender, smsSender string) (*Brevo, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing brevo api key")
	}
	if strings.TrimSpace(emailSender) == "" {
		return nil, fmt.Errorf("missing brevo email sender")
	}

	return &Brevo{
		apiKey:      apiKey,
		emailSender: strings.TrimSpace(emailSender),
		smsSender:   strings.TrimSpace(smsSender),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

type brevoEmailRequest struct {
	Sender struct {
		Email string `json:"email"`
	} `json:"sender"`
	To []struct {
		Email string `json:"email"`
	} `json:"to"`
	Subject     string `json:"subject"`
	TextContent string `json:"textContent"`
}

func (b *Brevo) SendEmail(ctx context.Context, to, subject, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("empty email recipient")
	}

	var payload brevoEmailRequest
	payload.Sender.Email = b.emailSender
	payload.To = append(payload.To, struct {
		Email string `json:"email"`
	}{Email: to})
	payload.Subject = subject
	payload.TextContent = body

	return b.post(ctx, brevoEmailURL, payload)
}

type brevoSMSRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
	Type      string `json:"type"`
}

func (b *Brevo) SendSMS(ctx context.Context, phoneNumber, message string) error {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return fmt.Errorf("empty sms recipient")
	}

	sender := b.smsSender
	if sender == "" {
		sender = "Account"
	}

	return b.post(ctx, brevoSMSURL, brevoSMSRequest{
		Sender:    sender,
		Recipient: phoneNumber,
		Content:   message,
		Type:      "transactional",
	})
}

type brevoErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (b *Brevo) post(ctx context.Context, url string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode brevo payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build brevo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("brevo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read brevo response: %w", err)
	}

	var parsed brevoErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return fmt.Errorf("brevo request rejected: %s (%s)", parsed.Message, parsed.Code)
	}

	return fmt.Errorf("brevo request failed with status %d", resp.StatusCode)
}
