package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SendGridSender delivers dynamic-template email via the SendGrid v3 API.
type SendGridSender struct {
	BaseURL   string
	APIKey    string
	FromEmail string
	FromName  string
	// TemplateIDs maps logical template names ("reminder_gentle", ...) to
	// SendGrid dynamic template ids.
	TemplateIDs map[string]string
	client      *http.Client
}

func NewSendGridSender(apiKey, fromEmail, fromName string, templateIDs map[string]string) *SendGridSender {
	return &SendGridSender{
		BaseURL:     "https://api.sendgrid.com",
		APIKey:      apiKey,
		FromEmail:   fromEmail,
		FromName:    fromName,
		TemplateIDs: templateIDs,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	templateID, ok := s.TemplateIDs[msg.Template]
	if !ok {
		return fmt.Errorf("sendgrid: no template id for %q", msg.Template)
	}
	payload := map[string]interface{}{
		"from": map[string]string{"email": s.FromEmail, "name": s.FromName},
		"personalizations": []map[string]interface{}{{
			"to":                    []map[string]string{{"email": msg.Recipient}},
			"dynamic_template_data": msg.Data,
		}},
		"template_id": templateID,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sendgrid: %d %s", resp.StatusCode, string(respBody))
	}
	return nil
}
