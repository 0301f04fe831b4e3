// Package reward implements the XP reward ledger: rule-driven awards with
// per-day caps, level recomputation, and level-up notifications.
package reward

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/devsharmatech/easy-rasta-sub001/internal/notify"
	"github.com/devsharmatech/easy-rasta-sub001/internal/store"
)

// Ledger awards XP for named actions. XP is a non-critical side effect of a
// primary action: Award never returns an error, failures are logged only.
type Ledger struct {
	store      *store.MemoryStore
	sender     notify.Sender
	logger     *slog.Logger
	thresholds []int

	// mu narrows the daily-cap count-then-insert race within this process.
	// Cross-process overshoot is accepted; XP is best-effort, not financial.
	mu sync.Mutex
}

// NewLedger creates a reward ledger. thresholds is the ascending cumulative
// XP required per level.
func NewLedger(st *store.MemoryStore, sender notify.Sender, logger *slog.Logger, thresholds []int) *Ledger {
	return &Ledger{
		store:      st,
		sender:     sender,
		logger:     logger,
		thresholds: thresholds,
	}
}

// ComputeLevel derives the level for a cumulative XP total. Pure.
func ComputeLevel(thresholds []int, totalXP int) int {
	level := 0
	for _, th := range thresholds {
		if totalXP < th {
			break
		}
		level++
	}
	return level
}

// Award credits XP for an action. Unconfigured or inactive actions without an
// override are a silent no-op; so is a reached daily cap. The XPTransaction
// row is the source of truth; the profile's xp/level are the derived cache.
func (l *Ledger) Award(participantID, actionKey, referenceID string, override *int) {
	rule, haveRule := l.store.XPRules.Get(actionKey)
	ruleUsable := haveRule && rule.IsActive

	if !ruleUsable && override == nil {
		return
	}

	xpValue := 0
	if override != nil {
		xpValue = *override
	} else {
		xpValue = rule.XPValue
	}
	if xpValue <= 0 {
		return
	}

	l.mu.Lock()
	if ruleUsable && rule.MaxPerDay != nil {
		if l.countToday(participantID, actionKey) >= *rule.MaxPerDay {
			l.mu.Unlock()
			l.logger.Debug("daily cap reached, award dropped",
				"participant_id", participantID,
				"action", actionKey,
				"max_per_day", *rule.MaxPerDay,
			)
			return
		}
	}

	txnID := l.store.XPTransactions.NextID()
	l.store.XPTransactions.Set(txnID, store.XPTransaction{
		ID:            txnID,
		ParticipantID: participantID,
		ActionKey:     actionKey,
		XPEarned:      xpValue,
		ReferenceID:   referenceID,
		CreatedAt:     l.store.Now(),
	})
	l.mu.Unlock()

	l.store.EnsureProfile(participantID)

	var levelBefore, levelAfter int
	ok := l.store.Profiles.Update(participantID, func(p store.ParticipantProfile) store.ParticipantProfile {
		levelBefore = ComputeLevel(l.thresholds, p.XP)
		p.XP += xpValue
		levelAfter = ComputeLevel(l.thresholds, p.XP)
		p.Level = levelAfter
		p.UpdatedAt = l.store.Now()
		return p
	})
	if !ok {
		l.logger.Error("profile vanished during award",
			"participant_id", participantID, "action", actionKey)
		return
	}

	l.logger.Info("xp awarded",
		"participant_id", participantID,
		"action", actionKey,
		"xp", xpValue,
		"reference_id", referenceID,
	)

	if levelAfter > levelBefore {
		l.sender.Notify(participantID, "Level Up",
			fmt.Sprintf("You reached level %d!", levelAfter))
	}
}

// countToday counts the participant's ledger rows for the action since UTC
// midnight. RFC3339 UTC timestamps compare lexicographically.
func (l *Ledger) countToday(participantID, actionKey string) int {
	dayStart := l.store.Clock.Now().UTC().Truncate(24 * time.Hour).Format(time.RFC3339)
	rows := l.store.XPTransactions.Filter(func(id string, t store.XPTransaction) bool {
		return t.ParticipantID == participantID &&
			t.ActionKey == actionKey &&
			t.CreatedAt >= dayStart
	})
	return len(rows)
}
