package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"miturn/internal/models"
	"miturn/internal/repository"
	"miturn/pkg/analytics"
	"miturn/pkg/messaging"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type reminderKey struct {
	circleID, userID uint
	cycleIndex       int
	tier             string
}

type fakeReminderStore struct {
	mu      sync.Mutex
	claimed map[reminderKey]*models.Reminder
	nextID  uint
}

func newFakeReminderStore() *fakeReminderStore {
	return &fakeReminderStore{claimed: make(map[reminderKey]*models.Reminder)}
}

func (s *fakeReminderStore) Claim(rem *models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reminderKey{rem.CircleID, rem.UserID, rem.CycleIndex, rem.Tier}
	if _, ok := s.claimed[key]; ok {
		return repository.ErrReminderExists
	}
	s.nextID++
	rem.ID = s.nextID
	cp := *rem
	s.claimed[key] = &cp
	return nil
}

func (s *fakeReminderStore) Update(rem *models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reminderKey{rem.CircleID, rem.UserID, rem.CycleIndex, rem.Tier}
	if _, ok := s.claimed[key]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *rem
	s.claimed[key] = &cp
	return nil
}

func (s *fakeReminderStore) get(key reminderKey) *models.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimed[key]
}

type fakeReminderUsers struct{}

func (fakeReminderUsers) GetByID(id uint) (*models.User, error) {
	return &models.User{ID: id, Email: "member@example.com", FullName: "Member"}, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []messaging.Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg messaging.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func newReminderService(t *testing.T, f *rotationFixture, store *fakeReminderStore, sender *recordingSender) *ReminderService {
	return NewReminderService(
		store, fakeReminderUsers{}, f.circles, f.svc,
		sender, f.notifier, analytics.Noop{},
		ReminderConfig{UrgentAfterDays: 2, OverdueAfterDays: 5},
		zaptest.NewLogger(t),
	)
}

func TestTierFor(t *testing.T) {
	f := newRotationFixture(t)
	svc := newReminderService(t, f, newFakeReminderStore(), &recordingSender{})

	tests := []struct {
		days int
		want string
	}{
		{0, "gentle"},
		{1, "gentle"},
		{2, "urgent"},
		{4, "urgent"},
		{5, "overdue"},
		{30, "overdue"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, svc.TierFor(tt.days), "days=%d", tt.days)
	}
}

func TestDispatchSendsOncePerTier(t *testing.T) {
	f := newRotationFixture(t)
	store := newFakeReminderStore()
	sender := &recordingSender{}
	svc := newReminderService(t, f, store, sender)

	res, err := svc.Dispatch(context.Background(), 1, 104, 0, "urgent")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "member@example.com", res.Recipient)
	require.Len(t, sender.sent, 1)
	require.Equal(t, "reminder_urgent", sender.sent[0].Template)
	require.Equal(t, []string{"urgent"}, f.notifier.due)

	rem := store.get(reminderKey{1, 104, 0, "urgent"})
	require.NotNil(t, rem)
	require.True(t, rem.Delivered)
	require.False(t, rem.SentAt.IsZero())

	// Same member-cycle tier again: claimed slot makes it a silent no-op.
	res, err = svc.Dispatch(context.Background(), 1, 104, 0, "urgent")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Len(t, sender.sent, 1)
	require.Len(t, f.notifier.due, 1)
}

func TestDispatchRecordsDeliveryFailure(t *testing.T) {
	f := newRotationFixture(t)
	store := newFakeReminderStore()
	sender := &recordingSender{err: errors.New("smtp unavailable")}
	svc := newReminderService(t, f, store, sender)

	_, err := svc.Dispatch(context.Background(), 1, 104, 0, "gentle")
	require.Error(t, err)
	require.Empty(t, f.notifier.due, "failed delivery must not raise the in-app notification")

	rem := store.get(reminderKey{1, 104, 0, "gentle"})
	require.NotNil(t, rem)
	require.False(t, rem.Delivered)
	require.Equal(t, "smtp unavailable", rem.DeliveryError)
}

func TestRunPassRemindsOverdueMembers(t *testing.T) {
	f := newRotationFixture(t)
	mid := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	for i := uint(1); i <= 3; i++ {
		f.contribute(t, 100+i, mid)
	}
	store := newFakeReminderStore()
	sender := &recordingSender{}
	svc := newReminderService(t, f, store, sender)

	// Cycle ended June 9; by June 12 member 104 is 4 days overdue, urgent.
	now := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)
	sent, err := svc.RunPass(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.NotNil(t, store.get(reminderKey{1, 104, 0, "urgent"}))

	// Re-running the same pass dispatches nothing new.
	sent, err = svc.RunPass(context.Background(), now)
	require.NoError(t, err)
	require.Zero(t, sent)
	require.Len(t, sender.sent, 1)
}

func TestRunPassEscalatesTier(t *testing.T) {
	f := newRotationFixture(t)
	mid := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	for i := uint(1); i <= 3; i++ {
		f.contribute(t, 100+i, mid)
	}
	store := newFakeReminderStore()
	sender := &recordingSender{}
	svc := newReminderService(t, f, store, sender)

	_, err := svc.RunPass(context.Background(), time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// Three days later the same member crosses the overdue threshold; the new
	// tier gets its own claim and its own send.
	sent, err := svc.RunPass(context.Background(), time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.NotNil(t, store.get(reminderKey{1, 104, 0, "urgent"}))
	require.NotNil(t, store.get(reminderKey{1, 104, 0, "overdue"}))
	require.Len(t, sender.sent, 2)
}
