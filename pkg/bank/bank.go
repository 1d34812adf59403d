// Package bank talks to the account aggregator and its transfer rails. The
// core never moves money itself; it hands a ready-to-execute decision to a
// Provider and learns the outcome through the transfer webhook.
package bank

import (
	"context"
	"time"
)

// TransferRequest asks the provider to move money from a linked funding
// account (contribution) or to it (payout).
type TransferRequest struct {
	UserID      uint
	AmountCents int64
	Currency    string
	AccessToken string // aggregator item token of the funding account
	AccountID   string
	Direction   string // "debit" pulls from the account, "credit" pays out to it
	Description string
	OrderID     string // unique, echoed back on the webhook
	CallbackURL string
}

type TransferResponse struct {
	Reference string // provider transfer id
	Status    string // pending | completed | failed
	CreatedAt time.Time
}

// LinkedItem is the result of exchanging a public token after the user
// completes the aggregator's link flow.
type LinkedItem struct {
	AccessToken string
	AccountID   string
	Institution string
	Mask        string
}

type Provider interface {
	// CreateLinkToken starts the link flow for a user.
	CreateLinkToken(ctx context.Context, userID uint) (string, error)
	// ExchangePublicToken trades the link flow's public token for a
	// long-lived access token plus account metadata.
	ExchangePublicToken(ctx context.Context, publicToken string) (*LinkedItem, error)
	// InitiateTransfer submits a transfer; terminal status arrives via webhook.
	InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResponse, error)
}
