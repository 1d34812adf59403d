package domain

// Transaction types
const (
	TxTypeContribution = "contribution"
	TxTypePayout       = "payout"
)

// Transaction statuses. Transitions are forward-only:
// pending -> completed | failed | cancelled.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
	TxStatusCancelled = "cancelled"
)

// IsTerminalTxStatus reports whether a transaction status admits no further transitions.
func IsTerminalTxStatus(s string) bool {
	return s == TxStatusCompleted || s == TxStatusFailed || s == TxStatusCancelled
}

// Contribution cadences
const (
	FrequencyWeekly   = "weekly"
	FrequencyBiweekly = "biweekly"
	FrequencyMonthly  = "monthly"
)

// Daily allocation statuses
const (
	AllocationPending   = "pending"
	AllocationProcessed = "processed"
	AllocationFailed    = "failed"
)

// Member state within a circle cycle
const (
	MemberCycleDue     = "due"
	MemberCyclePaid    = "paid"
	MemberCycleOverdue = "overdue"
)

// Circle state within a cycle
const (
	CircleCycleCollecting = "collecting"
	CircleCycleReady      = "ready"
	CircleCyclePaid       = "paid"
	CircleCycleDeferred   = "deferred"
)

// Reminder escalation tiers, in order
const (
	ReminderTierGentle  = "gentle"
	ReminderTierUrgent  = "urgent"
	ReminderTierOverdue = "overdue"
)

// Engagement tiers by streak length
const (
	TierBronze   = "bronze"
	TierSilver   = "silver"
	TierGold     = "gold"
	TierPlatinum = "platinum"
)

// Badge codes
const (
	BadgeFirstContribution = "first_contribution"
	BadgeStreak7           = "streak_7"
	BadgeStreak30          = "streak_30"
	BadgeFirstPayout       = "first_payout"
	BadgeCircleFounder     = "circle_founder"
	BadgeGoalAchieved      = "goal_achieved"
)

// Notification types
const (
	NotifContributionDue  = "CONTRIBUTION_DUE"
	NotifContributionDone = "CONTRIBUTION_COMPLETED"
	NotifPayoutSent       = "PAYOUT_SENT"
	NotifPayoutDeferred   = "PAYOUT_DEFERRED"
	NotifBadgeAwarded     = "BADGE_AWARDED"
)

// Analytics event names
const (
	EventReminderSent     = "reminder_sent"
	EventReminderFailed   = "reminder_failed"
	EventPayoutSent       = "payout_sent"
	EventPayoutDeferred   = "payout_deferred"
	EventAllocationFailed = "allocation_failed"
	EventGoalAchieved     = "goal_achieved"
	EventBadgeAwarded     = "badge_awarded"
	EventAccountLinked    = "account_linked"
)
