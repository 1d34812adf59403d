package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"miturn/internal/domain"
	"miturn/internal/models"
	"miturn/pkg/analytics"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type badgeKey struct {
	userID uint
	code   string
}

type fakeGamifyStore struct {
	mu      sync.Mutex
	streaks map[uint]*models.UserStreak
	badges  map[badgeKey]time.Time
}

func newFakeGamifyStore() *fakeGamifyStore {
	return &fakeGamifyStore{
		streaks: make(map[uint]*models.UserStreak),
		badges:  make(map[badgeKey]time.Time),
	}
}

func (s *fakeGamifyStore) GetStreak(userID uint) (*models.UserStreak, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streaks[userID]
	if !ok {
		st = &models.UserStreak{UserID: userID, Tier: domain.TierBronze}
		s.streaks[userID] = st
	}
	cp := *st
	return &cp, nil
}

func (s *fakeGamifyStore) SaveStreak(st *models.UserStreak) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.streaks[st.UserID] = &cp
	return nil
}

func (s *fakeGamifyStore) AwardBadge(userID uint, code string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := badgeKey{userID, code}
	if _, ok := s.badges[key]; ok {
		return false, nil
	}
	s.badges[key] = at
	return true, nil
}

func (s *fakeGamifyStore) ListBadges(userID uint) ([]models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Badge
	for key, at := range s.badges {
		if key.userID == userID {
			out = append(out, models.Badge{UserID: userID, Code: key.code, AwardedAt: at})
		}
	}
	return out, nil
}

type gamifyFixture struct {
	store    *fakeGamifyStore
	notifier *recordingNotifier
	ledger   *LedgerService
	svc      *GamificationService
}

func newGamifyFixture(t *testing.T) *gamifyFixture {
	store := newFakeGamifyStore()
	notifier := &recordingNotifier{}
	ledger, _ := newTestLedger(t)
	svc := NewGamificationService(store, notifier, analytics.Noop{}, zaptest.NewLogger(t))
	svc.SubscribeTo(ledger)
	return &gamifyFixture{store: store, notifier: notifier, ledger: ledger, svc: svc}
}

// settleContribution records a goal contribution and drives it to the given
// terminal status.
func (f *gamifyFixture) settleContribution(t *testing.T, userID uint, at time.Time, status string) {
	t.Helper()
	goalID := uint(1)
	tx, err := f.ledger.Record(context.Background(), TransactionDraft{
		GoalID: &goalID, UserID: userID, AmountCents: 1000,
		Type: domain.TxTypeContribution, Date: at,
	})
	require.NoError(t, err)
	_, err = f.ledger.Transition(context.Background(), tx.ID, status)
	require.NoError(t, err)
}

func TestStreakGrowsWithCompletedContributions(t *testing.T) {
	f := newGamifyFixture(t)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		f.settleContribution(t, 7, day.AddDate(0, 0, i), domain.TxStatusCompleted)
	}

	streak, err := f.store.GetStreak(7)
	require.NoError(t, err)
	require.Equal(t, 3, streak.Current)
	require.Equal(t, 3, streak.Longest)
	require.Equal(t, domain.TierBronze, streak.Tier)
	require.NotNil(t, streak.LastContribution)
}

func TestTierThresholds(t *testing.T) {
	tests := []struct {
		contributions int
		want          string
	}{
		{3, domain.TierBronze},
		{4, domain.TierSilver},
		{11, domain.TierSilver},
		{12, domain.TierGold},
		{26, domain.TierPlatinum},
	}
	for _, tt := range tests {
		f := newGamifyFixture(t)
		day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < tt.contributions; i++ {
			f.settleContribution(t, 7, day.AddDate(0, 0, i), domain.TxStatusCompleted)
		}
		streak, err := f.store.GetStreak(7)
		require.NoError(t, err)
		require.Equal(t, tt.want, streak.Tier, "after %d contributions", tt.contributions)
	}
}

func TestLongGapRestartsStreak(t *testing.T) {
	f := newGamifyFixture(t)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		f.settleContribution(t, 7, day.AddDate(0, 0, i), domain.TxStatusCompleted)
	}
	// 40 days of silence exceeds the allowed gap; the next contribution
	// starts a fresh streak while longest is retained.
	f.settleContribution(t, 7, day.AddDate(0, 0, 45), domain.TxStatusCompleted)

	streak, err := f.store.GetStreak(7)
	require.NoError(t, err)
	require.Equal(t, 1, streak.Current)
	require.Equal(t, 5, streak.Longest)
	require.Equal(t, domain.TierBronze, streak.Tier)
}

func TestFailedContributionBreaksStreak(t *testing.T) {
	f := newGamifyFixture(t)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		f.settleContribution(t, 7, day.AddDate(0, 0, i), domain.TxStatusCompleted)
	}
	f.settleContribution(t, 7, day.AddDate(0, 0, 6), domain.TxStatusFailed)

	streak, err := f.store.GetStreak(7)
	require.NoError(t, err)
	require.Zero(t, streak.Current)
	require.Equal(t, 6, streak.Longest)
	require.Equal(t, domain.TierBronze, streak.Tier)
}

func TestStreakBadges(t *testing.T) {
	f := newGamifyFixture(t)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	f.settleContribution(t, 7, day, domain.TxStatusCompleted)
	require.Contains(t, f.notifier.badges, domain.BadgeFirstContribution)
	require.NotContains(t, f.notifier.badges, domain.BadgeStreak7)

	for i := 1; i < 7; i++ {
		f.settleContribution(t, 7, day.AddDate(0, 0, i), domain.TxStatusCompleted)
	}
	require.Contains(t, f.notifier.badges, domain.BadgeStreak7)

	// Each badge is announced exactly once no matter how often the condition
	// re-fires.
	count := 0
	for _, code := range f.notifier.badges {
		if code == domain.BadgeFirstContribution {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestFirstPayoutBadge(t *testing.T) {
	f := newGamifyFixture(t)
	circleID := uint(1)
	tx, err := f.ledger.Record(context.Background(), TransactionDraft{
		CircleID: &circleID, UserID: 7, AmountCents: 20000,
		Type: domain.TxTypePayout, Date: time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = f.ledger.Transition(context.Background(), tx.ID, domain.TxStatusCompleted)
	require.NoError(t, err)

	require.Contains(t, f.notifier.badges, domain.BadgeFirstPayout)
}

func TestAwardCircleFounder(t *testing.T) {
	f := newGamifyFixture(t)

	f.svc.AwardCircleFounder(7)
	f.svc.AwardCircleFounder(7)

	require.Equal(t, []string{domain.BadgeCircleFounder}, f.notifier.badges)
}

func TestProfile(t *testing.T) {
	f := newGamifyFixture(t)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f.settleContribution(t, 7, day, domain.TxStatusCompleted)

	streak, badges, err := f.svc.Profile(7)
	require.NoError(t, err)
	require.Equal(t, 1, streak.Current)
	require.Len(t, badges, 1)
	require.Equal(t, domain.BadgeFirstContribution, badges[0].Code)
}
