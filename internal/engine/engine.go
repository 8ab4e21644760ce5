// Package engine classifies candidate facts against the canonical entity
// store: silently accept (FILL), silently correct (RECONCILE), create a new
// entity (ENROLL), or hand off to a human (conflict flag).
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jwhan-dev/selfheal/internal/database"
	"github.com/jwhan-dev/selfheal/internal/intake"
)

// Thresholds are the tuning knobs of the decision rules. The defaults match
// the severity bands the review dashboard was built around; they are config
// values, not invariants.
type Thresholds struct {
	// Enroll is the minimum confidence to auto-create an unknown entity.
	// The boundary is inclusive.
	Enroll float64
	// Reconcile is the maximum conflict score for a silent overwrite.
	Reconcile float64
	// ConfidenceFloor is the minimum confidence for a silent overwrite,
	// regardless of how reliable the source is.
	ConfidenceFloor float64
}

// DefaultThresholds returns the stock tuning: enroll 0.75, reconcile 0.35,
// confidence floor 0.6.
func DefaultThresholds() Thresholds {
	return Thresholds{Enroll: 0.75, Reconcile: 0.35, ConfidenceFloor: 0.6}
}

// errEnrollRaced signals that the proposed entity appeared mid-enrollment and
// the fact must be re-resolved under the entity's own lock key.
var errEnrollRaced = errors.New("enrollment raced")

// Engine resolves candidate facts against the entity store and conflict
// ledger it was constructed with.
type Engine struct {
	db         *database.DB
	thresholds Thresholds
	locks      fieldLocks
}

// New creates an engine. Zero thresholds are replaced with the defaults.
func New(db *database.DB, t Thresholds) *Engine {
	d := DefaultThresholds()
	if t.Enroll == 0 {
		t.Enroll = d.Enroll
	}
	if t.Reconcile == 0 {
		t.Reconcile = d.Reconcile
	}
	if t.ConfidenceFloor == 0 {
		t.ConfidenceFloor = d.ConfidenceFloor
	}
	return &Engine{db: db, thresholds: t}
}

// Resolve classifies one candidate fact and applies the resulting mutation or
// flag. Side effects are all-or-nothing per fact: exactly one entity mutation
// plus one audit record, or exactly one conflict flag, or (for an equivalent
// value) nothing at all.
//
// Facts targeting the same (entity, field) pair are serialized; the second
// sees the first's write as its existing value.
func (e *Engine) Resolve(fact intake.CandidateFact) (Decision, error) {
	entity, err := e.lookup(fact.Entity)
	if err != nil {
		return nil, err
	}

	for {
		key := e.lockKey(entity, fact)
		unlock := e.locks.lock(key)

		// Re-read under the lock: a serialized fact may have enrolled
		// the entity or written the field since the unlocked lookup.
		entity, err = e.lookup(fact.Entity)
		if err != nil {
			unlock()
			return nil, err
		}

		// An entity appearing (or vanishing) between lookup and lock
		// moves the fact to a different key; re-acquire under it so a
		// by-name fact and a by-id fact for the same field can never
		// hold separate locks.
		if e.lockKey(entity, fact) != key {
			unlock()
			continue
		}

		var d Decision
		if entity == nil {
			d, err = e.resolveUnknown(fact)
			if errors.Is(err, errEnrollRaced) {
				unlock()
				entity, err = e.lookup(fact.Entity)
				if err != nil {
					return nil, err
				}
				continue
			}
		} else {
			d, err = e.resolveField(entity, fact)
		}
		unlock()
		return d, err
	}
}

// lookup resolves an entity reference, returning nil when nothing matches.
func (e *Engine) lookup(ref intake.EntityRef) (*database.Entity, error) {
	if ref.ID > 0 {
		return e.db.GetEntityByID(ref.ID)
	}
	return e.db.GetEntityByName(ref.Kind, ref.Name)
}

func (e *Engine) lockKey(entity *database.Entity, fact intake.CandidateFact) string {
	if entity != nil {
		return fmt.Sprintf("e%d/%s", entity.ID, fact.FieldName)
	}
	return fmt.Sprintf("n%s/%s/%s", fact.Entity.Kind, fact.Entity.Name, fact.FieldName)
}

// resolveUnknown handles facts whose entity reference matched nothing.
// High-confidence proposals enroll a new entity; everything else is flagged —
// low-confidence unknown entities are never silently created.
func (e *Engine) resolveUnknown(fact intake.CandidateFact) (Decision, error) {
	if fact.Entity.ID > 0 {
		// Referenced by id but gone: deleted out from under us.
		// There is no name to enroll under, so report and let the
		// caller retry or drop.
		return nil, fmt.Errorf("%w: entity %d does not exist", database.ErrEntityNotWritable, fact.Entity.ID)
	}

	if fact.Confidence >= e.thresholds.Enroll {
		reasoning := fact.Reasoning
		if reasoning == "" {
			reasoning = fmt.Sprintf("enrolled unknown %s %q with confidence %.2f",
				strings.ToLower(fact.Entity.Kind), fact.Entity.Name, fact.Confidence)
		}
		entityID, logID, err := e.db.EnrollEntity(database.Enrollment{
			ArticleID:         fact.ArticleID,
			Kind:              fact.Entity.Kind,
			Name:              fact.Entity.Name,
			FieldName:         fact.FieldName,
			Value:             fact.Value,
			Reasoning:         reasoning,
			Confidence:        fact.Confidence,
			SourceReliability: fact.SourceReliability,
		})
		if errors.Is(err, database.ErrEntityNotWritable) {
			// Lost an enrollment race with a writer outside this
			// engine; the entity exists now. Resolve retries under
			// the entity's own lock key.
			return nil, errEnrollRaced
		}
		if err != nil {
			return nil, err
		}
		return Enrolled{
			EntityID:  entityID,
			Kind:      fact.Entity.Kind,
			Name:      fact.Entity.Name,
			FieldName: fact.FieldName,
			Value:     fact.Value,
			LogID:     logID,
		}, nil
	}

	score := 1 - fact.Confidence
	reason := fmt.Sprintf("unknown %s %q proposed with confidence %.2f below enroll threshold %.2f",
		strings.ToLower(fact.Entity.Kind), fact.Entity.Name, fact.Confidence, e.thresholds.Enroll)
	flagID, err := e.db.InsertConflictFlag(database.ConflictInsert{
		ArticleID:        fact.ArticleID,
		EntityKind:       fact.Entity.Kind,
		EntityName:       fact.Entity.Name,
		FieldName:        fact.FieldName,
		ConflictingValue: fact.Value,
		Reason:           reason,
		ConflictScore:    score,
	})
	if err != nil {
		return nil, err
	}
	return Flagged{FlagID: flagID, ConflictScore: score, Reason: reason}, nil
}

// resolveField handles facts against an existing entity, in fixed order:
// empty-field fill, equivalence no-op, then conflict scoring.
func (e *Engine) resolveField(entity *database.Entity, fact intake.CandidateFact) (Decision, error) {
	current, err := e.db.GetEntityField(entity.ID, fact.FieldName)
	if err != nil {
		return nil, err
	}

	if current == nil {
		// A previously unknown fact never conflicts with anything,
		// so no confidence gate applies.
		reasoning := fact.Reasoning
		if reasoning == "" {
			reasoning = fmt.Sprintf("filled empty field (confidence %.2f, source reliability %.2f)",
				fact.Confidence, fact.SourceReliability)
		}
		logID, err := e.db.ApplyFieldResolution(database.FieldResolution{
			ArticleID:         fact.ArticleID,
			EntityKind:        entity.Kind,
			EntityID:          entity.ID,
			FieldName:         fact.FieldName,
			NewValue:          fact.Value,
			Type:              database.ResolutionFill,
			Reasoning:         reasoning,
			Confidence:        fact.Confidence,
			SourceReliability: fact.SourceReliability,
		})
		if err != nil {
			return nil, err
		}
		return Filled{EntityID: entity.ID, FieldName: fact.FieldName, Value: fact.Value, LogID: logID}, nil
	}

	if equivalent(*current, fact.Value) {
		return Unchanged{EntityID: entity.ID, FieldName: fact.FieldName}, nil
	}

	score := 1 - fact.Confidence*fact.SourceReliability
	if score <= e.thresholds.Reconcile && fact.Confidence >= e.thresholds.ConfidenceFloor {
		reasoning := fact.Reasoning
		if reasoning == "" {
			reasoning = fmt.Sprintf("reconciled %q to %q (conflict score %.4f within threshold %.2f)",
				*current, fact.Value, score, e.thresholds.Reconcile)
		}
		logID, err := e.db.ApplyFieldResolution(database.FieldResolution{
			ArticleID:         fact.ArticleID,
			EntityKind:        entity.Kind,
			EntityID:          entity.ID,
			FieldName:         fact.FieldName,
			OldValue:          current,
			NewValue:          fact.Value,
			Type:              database.ResolutionReconcile,
			Reasoning:         reasoning,
			Confidence:        fact.Confidence,
			SourceReliability: fact.SourceReliability,
		})
		if err != nil {
			return nil, err
		}
		return Reconciled{
			EntityID:  entity.ID,
			FieldName: fact.FieldName,
			OldValue:  *current,
			NewValue:  fact.Value,
			LogID:     logID,
		}, nil
	}

	reason := fmt.Sprintf("existing %q vs candidate %q (conflict score %.4f, confidence %.2f)",
		*current, fact.Value, score, fact.Confidence)
	flagID, err := e.db.InsertConflictFlag(database.ConflictInsert{
		ArticleID:        fact.ArticleID,
		EntityKind:       entity.Kind,
		EntityID:         &entity.ID,
		EntityName:       entity.Name,
		FieldName:        fact.FieldName,
		ExistingValue:    current,
		ConflictingValue: fact.Value,
		Reason:           reason,
		ConflictScore:    score,
	})
	if err != nil {
		return nil, err
	}
	return Flagged{FlagID: flagID, ConflictScore: score, Reason: reason}, nil
}

// equivalent compares values case- and whitespace-normalized. Structured
// values (dates, numbers) are stored as canonical strings, so the same
// comparison is exact for them.
func equivalent(a, b string) bool {
	return normalizeValue(a) == normalizeValue(b)
}

func normalizeValue(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
