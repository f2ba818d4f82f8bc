// Package progression holds the per-user character state (level and
// experience within the level) and the pure rules that advance it.
// This is a pure domain layer with zero external dependencies.
package progression

import (
	"strings"
	"time"

	"github.com/sio4242/Godsaeng-project/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Level is a character level. Ledgers start at InitialLevel.
type Level int

// Exp is experience accumulated within the current level.
type Exp int

const (
	// InitialLevel is the level a freshly provisioned ledger starts at.
	InitialLevel Level = 1

	// DefaultExpPerLevel is the experience every level requires.
	DefaultExpPerLevel Exp = 100
)

// Requirement maps a level to the experience needed to leave it.
// It must return a positive value for every level.
type Requirement func(level Level) Exp

// FixedRequirement returns a Requirement that is the same for every level.
func FixedRequirement(perLevel Exp) Requirement {
	return func(Level) Exp {
		return perLevel
	}
}

// DefaultRequirement is the fixed-100 rule.
var DefaultRequirement = FixedRequirement(DefaultExpPerLevel)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL-UP RESOLVER
// ══════════════════════════════════════════════════════════════════════════════

// Resolver folds experience awards into a (level, exp) pair.
type Resolver struct {
	requirement Requirement
}

// NewResolver creates a Resolver. A nil requirement falls back to DefaultRequirement.
func NewResolver(requirement Requirement) Resolver {
	if requirement == nil {
		requirement = DefaultRequirement
	}
	return Resolver{requirement: requirement}
}

// Required returns the experience needed to leave the given level.
func (r Resolver) Required(level Level) Exp {
	if r.requirement == nil {
		return DefaultRequirement(level)
	}
	return r.requirement(level)
}

// Apply adds award to exp and rolls over as many levels as the total covers.
// The returned exp is always strictly below Required(newLevel).
func (r Resolver) Apply(level Level, exp Exp, award Exp) (Level, Exp, bool, error) {
	if award < 0 {
		return level, exp, false, shared.ErrNegativeAward
	}

	startLevel := level
	exp += award
	for {
		required := r.Required(level)
		if required <= 0 {
			return startLevel, exp - award, false, shared.ErrInvalidRequirement
		}
		if exp < required {
			break
		}
		exp -= required
		level++
	}

	return level, exp, level > startLevel, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Ledger is the persisted progression record of one user.
type Ledger struct {
	UserID    string
	Level     Level
	Exp       Exp
	UpdatedAt time.Time
}

// NewLedger creates the starting ledger for a user.
func NewLedger(userID string, at time.Time) (*Ledger, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.ErrInvalidUserID
	}
	return &Ledger{
		UserID:    userID,
		Level:     InitialLevel,
		Exp:       0,
		UpdatedAt: at,
	}, nil
}

// Award applies an experience award in place and reports whether the
// ledger gained at least one level. A zero award changes nothing.
func (l *Ledger) Award(r Resolver, award Exp, at time.Time) (bool, error) {
	if award == 0 {
		return false, nil
	}

	level, exp, leveledUp, err := r.Apply(l.Level, l.Exp, award)
	if err != nil {
		return false, err
	}

	l.Level = level
	l.Exp = exp
	l.UpdatedAt = at
	return leveledUp, nil
}

// Snapshot is a read model of a ledger, enriched with the current requirement.
type Snapshot struct {
	UserID      string    `json:"user_id"`
	Level       int       `json:"level"`
	Exp         int       `json:"exp"`
	ExpRequired int       `json:"exp_required"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns the read model of the ledger.
func (l *Ledger) Snapshot(r Resolver) Snapshot {
	return Snapshot{
		UserID:      l.UserID,
		Level:       int(l.Level),
		Exp:         int(l.Exp),
		ExpRequired: int(r.Required(l.Level)),
		UpdatedAt:   l.UpdatedAt,
	}
}
