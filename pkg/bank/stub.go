package bank

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StubProvider is a no-op provider for development: links succeed instantly
// and transfers settle synchronously.
type StubProvider struct{}

func (s *StubProvider) CreateLinkToken(ctx context.Context, userID uint) (string, error) {
	return fmt.Sprintf("link-stub-%d-%d", userID, time.Now().UnixNano()), nil
}

func (s *StubProvider) ExchangePublicToken(ctx context.Context, publicToken string) (*LinkedItem, error) {
	if !strings.HasPrefix(publicToken, "public-") {
		return nil, fmt.Errorf("stub: unexpected public token %q", publicToken)
	}
	return &LinkedItem{
		AccessToken: "access-stub-" + publicToken,
		AccountID:   "acct-stub-1",
		Institution: "Stub Bank",
		Mask:        "0000",
	}, nil
}

func (s *StubProvider) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	return &TransferResponse{
		Reference: "tr-stub-" + req.OrderID,
		Status:    "completed",
		CreatedAt: time.Now(),
	}, nil
}
