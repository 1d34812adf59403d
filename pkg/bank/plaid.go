package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// PlaidProvider implements linking and ACH transfers via the Plaid API.
type PlaidProvider struct {
	BaseURL     string
	ClientID    string
	Secret      string
	WebhookBase string
	client      *http.Client
}

func NewPlaidProvider(baseURL, clientID, secret, webhookBase string) *PlaidProvider {
	if baseURL == "" {
		baseURL = "https://sandbox.plaid.com"
	}
	return &PlaidProvider{
		BaseURL:     baseURL,
		ClientID:    clientID,
		Secret:      secret,
		WebhookBase: webhookBase,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// post sends a Plaid request with credentials injected into the body, and
// decodes the response into out.
func (p *PlaidProvider) post(ctx context.Context, path string, body map[string]interface{}, out interface{}) error {
	body["client_id"] = p.ClientID
	body["secret"] = p.Secret
	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("plaid %s: %d %s", path, resp.StatusCode, string(respBody))
	}
	return json.Unmarshal(respBody, out)
}

func (p *PlaidProvider) CreateLinkToken(ctx context.Context, userID uint) (string, error) {
	var out struct {
		LinkToken string `json:"link_token"`
	}
	body := map[string]interface{}{
		"client_name":   "MiTurn",
		"language":      "en",
		"country_codes": []string{"US"},
		"user":          map[string]string{"client_user_id": strconv.FormatUint(uint64(userID), 10)},
		"products":      []string{"auth", "transfer"},
	}
	if p.WebhookBase != "" {
		body["webhook"] = p.WebhookBase + "/api/v1/webhooks/plaid"
	}
	if err := p.post(ctx, "/link/token/create", body, &out); err != nil {
		return "", err
	}
	return out.LinkToken, nil
}

func (p *PlaidProvider) ExchangePublicToken(ctx context.Context, publicToken string) (*LinkedItem, error) {
	var exchange struct {
		AccessToken string `json:"access_token"`
		ItemID      string `json:"item_id"`
	}
	if err := p.post(ctx, "/item/public_token/exchange", map[string]interface{}{
		"public_token": publicToken,
	}, &exchange); err != nil {
		return nil, err
	}

	var accounts struct {
		Accounts []struct {
			AccountID string `json:"account_id"`
			Mask      string `json:"mask"`
			Name      string `json:"name"`
		} `json:"accounts"`
		Item struct {
			InstitutionName string `json:"institution_name"`
		} `json:"item"`
	}
	if err := p.post(ctx, "/accounts/get", map[string]interface{}{
		"access_token": exchange.AccessToken,
	}, &accounts); err != nil {
		return nil, err
	}
	item := &LinkedItem{AccessToken: exchange.AccessToken, Institution: accounts.Item.InstitutionName}
	if len(accounts.Accounts) > 0 {
		item.AccountID = accounts.Accounts[0].AccountID
		item.Mask = accounts.Accounts[0].Mask
	}
	return item, nil
}

// InitiateTransfer authorizes then creates a Plaid transfer. The returned
// status is pending; settlement arrives on the webhook keyed by OrderID.
func (p *PlaidProvider) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	amount := fmt.Sprintf("%d.%02d", req.AmountCents/100, req.AmountCents%100)
	legalName := fmt.Sprintf("miturn-user-%d", req.UserID)

	var auth struct {
		Authorization struct {
			ID       string `json:"id"`
			Decision string `json:"decision"`
		} `json:"authorization"`
	}
	if err := p.post(ctx, "/transfer/authorization/create", map[string]interface{}{
		"access_token": req.AccessToken,
		"account_id":   req.AccountID,
		"type":         req.Direction,
		"network":      "ach",
		"amount":       amount,
		"ach_class":    "ppd",
		"user":         map[string]string{"legal_name": legalName},
	}, &auth); err != nil {
		return nil, err
	}
	if auth.Authorization.Decision != "approved" {
		return nil, fmt.Errorf("plaid transfer not approved: %s", auth.Authorization.Decision)
	}

	var created struct {
		Transfer struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"transfer"`
	}
	if err := p.post(ctx, "/transfer/create", map[string]interface{}{
		"access_token":     req.AccessToken,
		"account_id":       req.AccountID,
		"authorization_id": auth.Authorization.ID,
		"description":      req.Description,
		"metadata":         map[string]string{"order_id": req.OrderID},
	}, &created); err != nil {
		return nil, err
	}
	return &TransferResponse{
		Reference: created.Transfer.ID,
		Status:    "pending",
		CreatedAt: time.Now(),
	}, nil
}
