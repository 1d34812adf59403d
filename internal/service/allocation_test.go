package service

import (
	"context"
	"testing"
	"time"

	"miturn/internal/domain"
	"miturn/internal/models"
	"miturn/pkg/analytics"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type memGoalStore struct {
	goals map[uint]*models.Goal
}

func newMemGoalStore(goals ...*models.Goal) *memGoalStore {
	s := &memGoalStore{goals: make(map[uint]*models.Goal)}
	for _, g := range goals {
		s.goals[g.ID] = g
	}
	return s
}

func (s *memGoalStore) GetByID(id uint) (*models.Goal, error) {
	g, ok := s.goals[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *memGoalStore) ListActive() ([]models.Goal, error) {
	var out []models.Goal
	for _, g := range s.goals {
		if g.IsActive {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *memGoalStore) AddSaved(id uint, amountCents int64) error {
	g, ok := s.goals[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	g.SavedCents += amountCents
	return nil
}

func (s *memGoalStore) MarkAchieved(id uint, at time.Time) error {
	g, ok := s.goals[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if g.AchievedAt == nil {
		t := at
		g.AchievedAt = &t
		g.IsActive = false
	}
	return nil
}

type allocKey struct {
	goalID uint
	date   time.Time
}

type memAllocStore struct {
	rows    map[allocKey]*models.DailyAllocation
	upserts int
}

func newMemAllocStore() *memAllocStore {
	return &memAllocStore{rows: make(map[allocKey]*models.DailyAllocation)}
}

func (s *memAllocStore) Upsert(a *models.DailyAllocation) error {
	s.upserts++
	key := allocKey{goalID: a.GoalID, date: a.Date}
	cp := *a
	s.rows[key] = &cp
	return nil
}

func (s *memAllocStore) MarkLatestPending(goalID uint, status string) error {
	var latest *models.DailyAllocation
	for key, row := range s.rows {
		if key.goalID != goalID || row.Status != domain.AllocationPending {
			continue
		}
		if latest == nil || row.Date.After(latest.Date) {
			latest = row
		}
	}
	if latest != nil {
		latest.Status = status
	}
	return nil
}

func testGoal(id, userID uint, target, saved int64, deadline time.Time) *models.Goal {
	return &models.Goal{
		ID: id, UserID: userID, Name: "goal",
		TargetCents: target, SavedCents: saved,
		Deadline: deadline, IsActive: true,
	}
}

func newAllocService(t *testing.T, goals *memGoalStore, allocs *memAllocStore, cfg AllocationConfig) *AllocationService {
	return NewAllocationService(goals, allocs, cfg, analytics.Noop{}, zaptest.NewLogger(t))
}

func TestSuggestForGoal(t *testing.T) {
	today := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		goal    *models.Goal
		cfg     AllocationConfig
		want    int64
		wantErr error
	}{
		{
			// (100000 - 40000) / 30 = 2000
			name: "even split over remaining days",
			goal: testGoal(1, 1, 100000, 40000, today.AddDate(0, 0, 30)),
			want: 2000,
		},
		{
			name: "goal already met",
			goal: testGoal(1, 1, 50000, 50000, today.AddDate(0, 0, 10)),
			want: 0,
		},
		{
			name: "overshot target",
			goal: testGoal(1, 1, 50000, 60000, today.AddDate(0, 0, 10)),
			want: 0,
		},
		{
			name: "deadline today suggests full remainder",
			goal: testGoal(1, 1, 10000, 7500, today),
			want: 2500,
		},
		{
			name:    "past deadline",
			goal:    testGoal(1, 1, 10000, 500, today.AddDate(0, 0, -1)),
			wantErr: ErrGoalPastDeadline,
		},
		{
			name: "clamped to minimum",
			goal: testGoal(1, 1, 10000, 9900, today.AddDate(0, 0, 50)), // raw 2
			cfg:  AllocationConfig{MinCents: 100},
			want: 100,
		},
		{
			name: "minimum never exceeds remaining",
			goal: testGoal(1, 1, 10000, 9950, today.AddDate(0, 0, 50)), // raw 1, remaining 50
			cfg:  AllocationConfig{MinCents: 100},
			want: 50,
		},
		{
			name: "clamped to maximum",
			goal: testGoal(1, 1, 1000000, 0, today.AddDate(0, 0, 2)), // raw 500000
			cfg:  AllocationConfig{MaxCents: 20000},
			want: 20000,
		},
		{
			// 10000 / 3 = 3333.33, rounded
			name: "fractional division rounds",
			goal: testGoal(1, 1, 10000, 0, today.AddDate(0, 0, 3)),
			want: 3333,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newAllocService(t, newMemGoalStore(), newMemAllocStore(), tt.cfg)
			got, err := svc.SuggestForGoal(tt.goal, today)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRunDailyPassUpsertsPerGoal(t *testing.T) {
	today := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	goals := newMemGoalStore(
		testGoal(1, 1, 100000, 40000, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)),
		testGoal(2, 1, 50000, 50000, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)), // met
	)
	allocs := newMemAllocStore()
	svc := newAllocService(t, goals, allocs, AllocationConfig{})

	processed, err := svc.RunDailyPass(context.Background(), today)
	require.NoError(t, err)
	require.Equal(t, 1, processed, "met goals produce no allocation")

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	row := allocs.rows[allocKey{goalID: 1, date: day}]
	require.NotNil(t, row)
	require.Equal(t, int64(2000), row.SuggestedCents)
	require.Equal(t, domain.AllocationPending, row.Status)
	require.NotNil(t, row.SuggestedPct)
	require.InDelta(t, 2.0, *row.SuggestedPct, 0.01)
	require.Nil(t, allocs.rows[allocKey{goalID: 2, date: day}])
}

func TestRunDailyPassIsIdempotent(t *testing.T) {
	today := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	goals := newMemGoalStore(testGoal(1, 1, 100000, 40000, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)))
	allocs := newMemAllocStore()
	svc := newAllocService(t, goals, allocs, AllocationConfig{})

	_, err := svc.RunDailyPass(context.Background(), today)
	require.NoError(t, err)
	_, err = svc.RunDailyPass(context.Background(), today.Add(4*time.Hour))
	require.NoError(t, err)

	require.Len(t, allocs.rows, 1, "same day re-run updates in place")
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, int64(2000), allocs.rows[allocKey{goalID: 1, date: day}].SuggestedCents)
}

func TestRunDailyPassRecordsPastDeadlineAsFailed(t *testing.T) {
	today := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	goals := newMemGoalStore(testGoal(1, 1, 100000, 40000, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))
	allocs := newMemAllocStore()
	svc := newAllocService(t, goals, allocs, AllocationConfig{})

	_, err := svc.RunDailyPass(context.Background(), today)
	require.ErrorIs(t, err, ErrGoalPastDeadline)

	row := allocs.rows[allocKey{goalID: 1, date: today}]
	require.NotNil(t, row)
	require.Equal(t, domain.AllocationFailed, row.Status)
	require.Zero(t, row.SuggestedCents)
}

func TestRunDailyPassSplitsSharedBudget(t *testing.T) {
	today := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	deadline := today.AddDate(0, 0, 10)
	goals := newMemGoalStore(
		testGoal(1, 1, 30000, 0, deadline), // raw 3000
		testGoal(2, 1, 10000, 0, deadline), // raw 1000
	)
	allocs := newMemAllocStore()
	svc := newAllocService(t, goals, allocs, AllocationConfig{
		SplitAcrossGoals: true,
		MaxDailyCents:    2000,
	})

	_, err := svc.RunDailyPass(context.Background(), today)
	require.NoError(t, err)

	// 4000 total scaled into the 2000 budget, proportionally.
	a1 := allocs.rows[allocKey{goalID: 1, date: today}]
	a2 := allocs.rows[allocKey{goalID: 2, date: today}]
	require.NotNil(t, a1)
	require.NotNil(t, a2)
	require.Equal(t, int64(1500), a1.SuggestedCents)
	require.Equal(t, int64(500), a2.SuggestedCents)
}

type recordingAchiever struct {
	users []uint
}

func (a *recordingAchiever) GoalAchieved(userID uint) {
	a.users = append(a.users, userID)
}

func TestLedgerEventSettlesAllocationAndGoal(t *testing.T) {
	today := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	goals := newMemGoalStore(testGoal(1, 9, 10000, 8000, today.AddDate(0, 0, 10)))
	allocs := newMemAllocStore()
	svc := newAllocService(t, goals, allocs, AllocationConfig{})
	achiever := &recordingAchiever{}
	svc.OnGoalAchieved(achiever)

	_, err := svc.RunDailyPass(context.Background(), today)
	require.NoError(t, err)

	ledger, _ := newTestLedger(t)
	svc.SubscribeTo(ledger)

	goalID := uint(1)
	tx, err := ledger.Record(context.Background(), TransactionDraft{
		GoalID: &goalID, UserID: 9, AmountCents: 2000,
		Type: domain.TxTypeContribution, Date: today,
	})
	require.NoError(t, err)
	_, err = ledger.Transition(context.Background(), tx.ID, domain.TxStatusCompleted)
	require.NoError(t, err)

	g, err := goals.GetByID(1)
	require.NoError(t, err)
	require.Equal(t, int64(10000), g.SavedCents)
	require.NotNil(t, g.AchievedAt, "reaching the target marks the goal achieved")
	require.False(t, g.IsActive)
	require.Equal(t, []uint{9}, achiever.users)
	require.Equal(t, domain.AllocationProcessed, allocs.rows[allocKey{goalID: 1, date: today}].Status)
}

func TestLedgerEventSettlesPreviousDayAllocation(t *testing.T) {
	suggested := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	goals := newMemGoalStore(testGoal(1, 9, 100000, 0, suggested.AddDate(0, 0, 30)))
	allocs := newMemAllocStore()
	svc := newAllocService(t, goals, allocs, AllocationConfig{})

	_, err := svc.RunDailyPass(context.Background(), suggested)
	require.NoError(t, err)

	ledger, _ := newTestLedger(t)
	svc.SubscribeTo(ledger)

	// The transfer settles the day after the suggestion; June 1's row must
	// not stay pending.
	goalID := uint(1)
	tx, err := ledger.Record(context.Background(), TransactionDraft{
		GoalID: &goalID, UserID: 9, AmountCents: 3000,
		Type: domain.TxTypeContribution, Date: suggested.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	_, err = ledger.Transition(context.Background(), tx.ID, domain.TxStatusCompleted)
	require.NoError(t, err)

	require.Equal(t, domain.AllocationProcessed, allocs.rows[allocKey{goalID: 1, date: suggested}].Status)
}

func TestLedgerEventMarksAllocationFailed(t *testing.T) {
	today := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	goals := newMemGoalStore(testGoal(1, 9, 10000, 0, today.AddDate(0, 0, 10)))
	allocs := newMemAllocStore()
	svc := newAllocService(t, goals, allocs, AllocationConfig{})

	_, err := svc.RunDailyPass(context.Background(), today)
	require.NoError(t, err)

	ledger, _ := newTestLedger(t)
	svc.SubscribeTo(ledger)

	goalID := uint(1)
	tx, err := ledger.Record(context.Background(), TransactionDraft{
		GoalID: &goalID, UserID: 9, AmountCents: 1000,
		Type: domain.TxTypeContribution, Date: today,
	})
	require.NoError(t, err)
	_, err = ledger.Transition(context.Background(), tx.ID, domain.TxStatusFailed)
	require.NoError(t, err)

	require.Equal(t, domain.AllocationFailed, allocs.rows[allocKey{goalID: 1, date: today}].Status)
	g, _ := goals.GetByID(1)
	require.Zero(t, g.SavedCents)
}
