package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"miturn/internal/domain"
	"miturn/internal/models"
	"miturn/pkg/bank"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// pendingProvider accepts transfers but settles nothing; terminal status must
// arrive via the webhook path.
type pendingProvider struct {
	requests []bank.TransferRequest
}

func (p *pendingProvider) CreateLinkToken(ctx context.Context, userID uint) (string, error) {
	return "link-test", nil
}

func (p *pendingProvider) ExchangePublicToken(ctx context.Context, publicToken string) (*bank.LinkedItem, error) {
	return &bank.LinkedItem{AccessToken: "access-test", AccountID: "acct-test"}, nil
}

func (p *pendingProvider) InitiateTransfer(ctx context.Context, req bank.TransferRequest) (*bank.TransferResponse, error) {
	p.requests = append(p.requests, req)
	return &bank.TransferResponse{Reference: "tr-" + req.OrderID, Status: "pending", CreatedAt: time.Now()}, nil
}

type failingProvider struct{}

func (failingProvider) CreateLinkToken(ctx context.Context, userID uint) (string, error) {
	return "", errors.New("provider down")
}

func (failingProvider) ExchangePublicToken(ctx context.Context, publicToken string) (*bank.LinkedItem, error) {
	return nil, errors.New("provider down")
}

func (failingProvider) InitiateTransfer(ctx context.Context, req bank.TransferRequest) (*bank.TransferResponse, error) {
	return nil, errors.New("provider down")
}

func intp(v int) *int { return &v }

type memRecurringStore struct {
	entries map[uint]*models.RecurringContribution
}

func newMemRecurringStore(entries ...*models.RecurringContribution) *memRecurringStore {
	s := &memRecurringStore{entries: make(map[uint]*models.RecurringContribution)}
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return s
}

func (s *memRecurringStore) ListDue(now time.Time) ([]models.RecurringContribution, error) {
	var out []models.RecurringContribution
	for _, e := range s.entries {
		if e.IsActive && !e.NextContributionDate.After(now) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *memRecurringStore) Update(rc *models.RecurringContribution) error {
	cp := *rc
	s.entries[rc.ID] = &cp
	return nil
}

type fakeCircleReader struct {
	currency string
}

func (f fakeCircleReader) GetByID(id uint) (*models.Circle, error) {
	return &models.Circle{ID: id, Name: "lunch crew", Currency: f.currency}, nil
}

func newContributionService(t *testing.T, transfer bank.Provider, recurring RecurringStore) (*ContributionService, *memTxStore, *LedgerService) {
	store := newMemTxStore()
	ledger := NewLedgerService(store, zaptest.NewLogger(t))
	accounts := &fakeAccounts{accounts: map[uint]*models.LinkedAccount{
		7: {UserID: 7, AccountID: "acct", AccessToken: "token", IsDefault: true},
	}}
	return NewContributionService(ledger, store, accounts, transfer, recurring, fakeCircleReader{currency: "USD"}, zaptest.NewLogger(t)), store, ledger
}

func TestInitiateWithStubSettlesSynchronously(t *testing.T) {
	svc, _, ledger := newContributionService(t, &bank.StubProvider{}, newMemRecurringStore())

	circleID := uint(1)
	tx, err := svc.Initiate(context.Background(), 7, &circleID, nil, 5000, "USD", "weekly dues")
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusCompleted, tx.Status)

	balance, err := ledger.BalanceOf(1)
	require.NoError(t, err)
	require.Equal(t, int64(5000), balance)
}

func TestInitiateStaysPendingUntilWebhook(t *testing.T) {
	provider := &pendingProvider{}
	svc, store, ledger := newContributionService(t, provider, newMemRecurringStore())

	circleID := uint(1)
	tx, err := svc.Initiate(context.Background(), 7, &circleID, nil, 5000, "USD", "")
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusPending, tx.Status)
	require.NotEmpty(t, tx.ProviderRef)
	require.Len(t, provider.requests, 1)
	require.Equal(t, "debit", provider.requests[0].Direction)

	// Pending rows do not count toward the circle balance.
	balance, err := ledger.BalanceOf(1)
	require.NoError(t, err)
	require.Zero(t, balance)

	settled, err := ledger.TransitionByProviderRef(context.Background(), tx.ProviderRef, domain.TxStatusCompleted)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusCompleted, settled.Status)

	row, err := store.GetByID(tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusCompleted, row.Status)
}

func TestInitiateWithoutFundingAccount(t *testing.T) {
	svc, _, _ := newContributionService(t, &bank.StubProvider{}, newMemRecurringStore())

	circleID := uint(1)
	_, err := svc.Initiate(context.Background(), 99, &circleID, nil, 5000, "USD", "")
	require.ErrorIs(t, err, ErrNoFundingAccount)
}

func TestInitiateCancelsLedgerRowOnProviderFailure(t *testing.T) {
	svc, store, _ := newContributionService(t, failingProvider{}, newMemRecurringStore())

	circleID := uint(1)
	_, err := svc.Initiate(context.Background(), 7, &circleID, nil, 5000, "USD", "")
	require.Error(t, err)

	// The pending row must not linger; it was cancelled when the provider
	// rejected the transfer.
	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.rows, 1)
	for _, row := range store.rows {
		require.Equal(t, domain.TxStatusCancelled, row.Status)
	}
}

func TestRunRecurringPassRollsScheduleForward(t *testing.T) {
	day := intp(1) // Monday
	entry := &models.RecurringContribution{
		ID: 1, UserID: 7, CircleID: 1, AmountCents: 5000,
		Frequency: domain.FrequencyWeekly, DayOfWeek: day,
		IsActive:             true,
		NextContributionDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	}
	recurring := newMemRecurringStore(entry)
	svc, _, ledger := newContributionService(t, &bank.StubProvider{}, recurring)

	now := time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)
	processed, err := svc.RunRecurringPass(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	require.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
		recurring.entries[1].NextContributionDate)
	balance, err := ledger.BalanceOf(1)
	require.NoError(t, err)
	require.Equal(t, int64(5000), balance)

	// Nothing is due after the roll; re-running is a no-op.
	processed, err = svc.RunRecurringPass(context.Background(), now)
	require.NoError(t, err)
	require.Zero(t, processed)
}

func TestRunRecurringPassUsesCircleCurrency(t *testing.T) {
	entry := &models.RecurringContribution{
		ID: 1, UserID: 7, CircleID: 1, AmountCents: 5000,
		Frequency: domain.FrequencyWeekly, DayOfWeek: intp(1),
		IsActive:             true,
		NextContributionDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	}
	store := newMemTxStore()
	ledger := NewLedgerService(store, zaptest.NewLogger(t))
	accounts := &fakeAccounts{accounts: map[uint]*models.LinkedAccount{
		7: {UserID: 7, AccountID: "acct", AccessToken: "token", IsDefault: true},
	}}
	svc := NewContributionService(ledger, store, accounts, &bank.StubProvider{},
		newMemRecurringStore(entry), fakeCircleReader{currency: "KES"}, zaptest.NewLogger(t))

	processed, err := svc.RunRecurringPass(context.Background(), time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	row, err := store.GetByID(1)
	require.NoError(t, err)
	require.Equal(t, "KES", row.Currency, "recurring rows carry the circle currency")
}

func TestRunRecurringPassKeepsFailedEntryDue(t *testing.T) {
	entry := &models.RecurringContribution{
		ID: 1, UserID: 7, CircleID: 1, AmountCents: 5000,
		Frequency: domain.FrequencyWeekly, DayOfWeek: intp(1),
		IsActive:             true,
		NextContributionDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	}
	recurring := newMemRecurringStore(entry)
	svc, _, _ := newContributionService(t, failingProvider{}, recurring)

	now := time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)
	processed, err := svc.RunRecurringPass(context.Background(), now)
	require.Error(t, err)
	require.Zero(t, processed)

	// The schedule did not advance, so the next pass retries this entry.
	require.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		recurring.entries[1].NextContributionDate)
}
