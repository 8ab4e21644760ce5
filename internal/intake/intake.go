// Package intake normalizes raw AI extraction output into candidate facts.
// It is pure: no side effects, so the decision engine can be tested
// independently of the extraction step.
package intake

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jwhan-dev/selfheal/internal/database"
)

// ErrInvalidInput reports a malformed extraction result. The fact is rejected
// before reaching the decision engine.
var ErrInvalidInput = errors.New("invalid input")

// EntityRef points at an existing entity by id, or proposes a new one by
// kind and name when the extraction step found no match.
type EntityRef struct {
	ID   int64  `json:"id,omitempty"`
	Kind string `json:"kind,omitempty"`
	Name string `json:"name,omitempty"`
}

// ByID references an existing entity.
func ByID(id int64) EntityRef { return EntityRef{ID: id} }

// ByName proposes an entity by kind and canonical name.
func ByName(kind, name string) EntityRef { return EntityRef{Kind: kind, Name: name} }

// CandidateFact is one field-value proposal derived from an article.
// It is transient: consumed immediately by the decision engine, never stored.
type CandidateFact struct {
	ArticleID         *int64
	Entity            EntityRef
	FieldName         string
	Value             string
	Confidence        float64
	SourceReliability float64
	Reasoning         string
}

// New validates one extraction result and returns it as a candidate fact.
func New(articleID *int64, ref EntityRef, fieldName, value string, confidence, sourceReliability float64, reasoning string) (CandidateFact, error) {
	if confidence < 0 || confidence > 1 {
		return CandidateFact{}, fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidInput, confidence)
	}
	if sourceReliability < 0 || sourceReliability > 1 {
		return CandidateFact{}, fmt.Errorf("%w: source reliability %v outside [0,1]", ErrInvalidInput, sourceReliability)
	}
	if strings.TrimSpace(fieldName) == "" {
		return CandidateFact{}, fmt.Errorf("%w: field name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(value) == "" {
		return CandidateFact{}, fmt.Errorf("%w: empty candidate value carries no information", ErrInvalidInput)
	}
	if err := validateRef(ref); err != nil {
		return CandidateFact{}, err
	}

	return CandidateFact{
		ArticleID:         articleID,
		Entity:            ref,
		FieldName:         fieldName,
		Value:             value,
		Confidence:        confidence,
		SourceReliability: sourceReliability,
		Reasoning:         strings.TrimSpace(reasoning),
	}, nil
}

func validateRef(ref EntityRef) error {
	if ref.ID < 0 {
		return fmt.Errorf("%w: negative entity id", ErrInvalidInput)
	}
	if ref.ID > 0 {
		return nil
	}
	if ref.Kind != database.KindArtist && ref.Kind != database.KindGroup {
		return fmt.Errorf("%w: entity kind must be ARTIST or GROUP, got %q", ErrInvalidInput, ref.Kind)
	}
	if strings.TrimSpace(ref.Name) == "" {
		return fmt.Errorf("%w: proposed entity name is required", ErrInvalidInput)
	}
	return nil
}
