package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwhan-dev/selfheal/internal/database"
)

func TestNewValidFact(t *testing.T) {
	articleID := int64(7)
	f, err := New(&articleID, ByID(3), "agency", "HYBE", 0.9, 0.8, "  stated in the article  ")
	require.NoError(t, err)

	assert.Equal(t, int64(3), f.Entity.ID)
	assert.Equal(t, "agency", f.FieldName)
	assert.Equal(t, "HYBE", f.Value)
	assert.Equal(t, 0.9, f.Confidence)
	assert.Equal(t, 0.8, f.SourceReliability)
	assert.Equal(t, "stated in the article", f.Reasoning)
}

func TestNewByNameFact(t *testing.T) {
	f, err := New(nil, ByName(database.KindGroup, "NewJeans"), "agency", "ADOR", 0.8, 0.7, "")
	require.NoError(t, err)
	assert.Zero(t, f.Entity.ID)
	assert.Equal(t, database.KindGroup, f.Entity.Kind)
	assert.Equal(t, "NewJeans", f.Entity.Name)
}

func TestNewRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		call func() (CandidateFact, error)
	}{
		{"confidence above 1", func() (CandidateFact, error) {
			return New(nil, ByID(1), "agency", "HYBE", 1.1, 0.8, "")
		}},
		{"negative confidence", func() (CandidateFact, error) {
			return New(nil, ByID(1), "agency", "HYBE", -0.1, 0.8, "")
		}},
		{"reliability above 1", func() (CandidateFact, error) {
			return New(nil, ByID(1), "agency", "HYBE", 0.9, 1.5, "")
		}},
		{"empty field name", func() (CandidateFact, error) {
			return New(nil, ByID(1), "  ", "HYBE", 0.9, 0.8, "")
		}},
		{"empty value", func() (CandidateFact, error) {
			return New(nil, ByID(1), "agency", "", 0.9, 0.8, "")
		}},
		{"negative entity id", func() (CandidateFact, error) {
			return New(nil, EntityRef{ID: -1}, "agency", "HYBE", 0.9, 0.8, "")
		}},
		{"bad kind", func() (CandidateFact, error) {
			return New(nil, ByName("LABEL", "HYBE"), "ceo", "Bang Si-hyuk", 0.9, 0.8, "")
		}},
		{"missing name", func() (CandidateFact, error) {
			return New(nil, ByName(database.KindArtist, "  "), "agency", "HYBE", 0.9, 0.8, "")
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := c.call()
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestNewAcceptsBoundaryScores(t *testing.T) {
	_, err := New(nil, ByID(1), "agency", "HYBE", 0, 0, "")
	assert.NoError(t, err)
	_, err = New(nil, ByID(1), "agency", "HYBE", 1, 1, "")
	assert.NoError(t, err)
}
