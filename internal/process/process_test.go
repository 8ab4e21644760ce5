package process

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwhan-dev/selfheal/internal/database"
	"github.com/jwhan-dev/selfheal/internal/engine"
)

func newTestProcessor(t *testing.T, workers int) (*Processor, *database.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	eng := engine.New(db, engine.DefaultThresholds())
	return NewProcessor(eng, workers), db
}

func TestProcessBatch(t *testing.T) {
	proc, db := newTestProcessor(t, 4)
	entityID, err := db.CreateEntity(database.KindGroup, "BTS")
	require.NoError(t, err)
	require.Equal(t, int64(1), entityID)

	input := strings.Join([]string{
		`{"entity":{"id":1},"field":"fandom_name","value":"ARMY","confidence":0.9,"source_reliability":0.8}`,
		`{"entity":{"kind":"GROUP","name":"NewJeans"},"field":"agency","value":"ADOR","confidence":0.9,"source_reliability":0.8}`,
		`{"entity":{"kind":"GROUP","name":"Mystery"},"field":"agency","value":"Unknown Ent","confidence":0.3,"source_reliability":0.5}`,
		``,
		`{"entity":{"id":1},"field":"fandom_name","value":"army","confidence":0.9,"source_reliability":0.8}`,
	}, "\n")

	result, err := proc.Process(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 1, result.Filled)
	assert.Equal(t, 1, result.Enrolled)
	assert.Equal(t, 1, result.Flagged)
	assert.Equal(t, 1, result.Unchanged)
	assert.Zero(t, result.Errors)
}

func TestProcessCountsErrors(t *testing.T) {
	proc, _ := newTestProcessor(t, 2)

	input := strings.Join([]string{
		`not json at all`,
		`{"entity":{"kind":"LABEL","name":"HYBE"},"field":"ceo","value":"x","confidence":0.9,"source_reliability":0.8}`,
		`{"entity":{"id":42},"field":"agency","value":"HYBE","confidence":0.9,"source_reliability":0.8}`,
	}, "\n")

	result, err := proc.Process(strings.NewReader(input))
	require.NoError(t, err)

	// Malformed JSON, invalid kind, and a dangling entity reference all count
	// as errors without aborting the batch.
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 3, result.Errors)
}

func TestProcessConcurrentSameField(t *testing.T) {
	proc, db := newTestProcessor(t, 8)
	_, err := db.CreateEntity(database.KindGroup, "BTS")
	require.NoError(t, err)

	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, `{"entity":{"id":1},"field":"fandom_name","value":"ARMY","confidence":0.9,"source_reliability":0.8}`)
	}

	result, err := proc.Process(strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)

	assert.Equal(t, 20, result.Processed)
	assert.Equal(t, 1, result.Filled, "only the first writer fills")
	assert.Equal(t, 19, result.Unchanged)

	feed, err := db.ResolutionFeed(nil, 100, 0)
	require.NoError(t, err)
	assert.Len(t, feed, 1)
}

func TestNewProcessorDefaultsWorkers(t *testing.T) {
	proc, _ := newTestProcessor(t, 0)
	assert.Equal(t, 4, proc.workers)
}

func TestProcessFileMissing(t *testing.T) {
	proc, _ := newTestProcessor(t, 1)
	_, err := proc.ProcessFile(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
}
