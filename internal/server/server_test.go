package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwhan-dev/selfheal/internal/database"
	"github.com/jwhan-dev/selfheal/internal/engine"
)

func newTestServer(t *testing.T) (*Server, *database.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, engine.New(db, engine.DefaultThresholds())), db
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSummaryEndpoint(t *testing.T) {
	s, db := newTestServer(t)
	entityID, _ := db.CreateEntity(database.KindGroup, "BTS")
	db.ApplyFieldResolution(database.FieldResolution{
		EntityKind: database.KindGroup, EntityID: entityID,
		FieldName: "agency", NewValue: "HYBE", Type: database.ResolutionFill,
		SourceReliability: 0.8,
	})

	w := doJSON(t, s, http.MethodGet, "/automation/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var summary database.Summary
	decode(t, w, &summary)
	assert.Equal(t, 24, summary.WindowHours)
	assert.Equal(t, 1, summary.FillCount)
	assert.Equal(t, 1, summary.TotalDecisions)
}

func TestSummaryRejectsBadWindow(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/automation/summary?window_hours=0", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestFeedEndpoint(t *testing.T) {
	s, db := newTestServer(t)
	entityID, _ := db.CreateEntity(database.KindGroup, "BTS")
	db.ApplyFieldResolution(database.FieldResolution{
		EntityKind: database.KindGroup, EntityID: entityID,
		FieldName: "agency", NewValue: "HYBE", Type: database.ResolutionFill,
	})
	db.ApplyFieldResolution(database.FieldResolution{
		EntityKind: database.KindGroup, EntityID: entityID,
		FieldName: "agency", NewValue: "HYBE Corp", Type: database.ResolutionReconcile,
	})

	w := doJSON(t, s, http.MethodGet, "/automation/feed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []feedEntry
	decode(t, w, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, database.ResolutionReconcile, entries[0].ResolutionType)

	w = doJSON(t, s, http.MethodGet, "/automation/feed?resolution_type=FILL", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, database.ResolutionFill, entries[0].ResolutionType)

	w = doJSON(t, s, http.MethodGet, "/automation/feed?resolution_type=MERGE", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, s, http.MethodGet, "/automation/feed?limit=500", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestConflictsEndpoint(t *testing.T) {
	s, db := newTestServer(t)
	entityID, _ := db.CreateEntity(database.KindGroup, "BTS")
	db.InsertConflictFlag(database.ConflictInsert{
		EntityKind: database.KindGroup, EntityID: &entityID, EntityName: "BTS",
		FieldName: "agency", ConflictingValue: "HYBE", ConflictScore: 0.75,
	})

	w := doJSON(t, s, http.MethodGet, "/automation/conflicts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var flags []conflictEntry
	decode(t, w, &flags)
	require.Len(t, flags, 1)
	assert.Equal(t, database.ConflictOpen, flags[0].Status)

	w = doJSON(t, s, http.MethodGet, "/automation/conflicts?status=CLOSED", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestResolveConflictEndpoint(t *testing.T) {
	s, db := newTestServer(t)
	entityID, _ := db.CreateEntity(database.KindGroup, "BTS")
	db.ApplyFieldResolution(database.FieldResolution{
		EntityKind: database.KindGroup, EntityID: entityID,
		FieldName: "agency", NewValue: "Big Hit", Type: database.ResolutionFill,
	})
	flagID, _ := db.InsertConflictFlag(database.ConflictInsert{
		EntityKind: database.KindGroup, EntityID: &entityID, EntityName: "BTS",
		FieldName: "agency", ConflictingValue: "HYBE", ConflictScore: 0.75,
	})

	body := map[string]any{"action": "RESOLVED", "resolved_by": "staff1", "chosen_value": "HYBE"}
	w := doJSON(t, s, http.MethodPatch, "/automation/conflicts/1", body)
	require.Equal(t, http.StatusOK, w.Code)

	var flag conflictEntry
	decode(t, w, &flag)
	assert.Equal(t, flagID, flag.ID)
	assert.Equal(t, database.ConflictResolved, flag.Status)

	value, _ := db.GetEntityField(entityID, "agency")
	require.NotNil(t, value)
	assert.Equal(t, "HYBE", *value)

	// Double submit: the flag already left OPEN.
	w = doJSON(t, s, http.MethodPatch, "/automation/conflicts/1", body)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestResolveConflictEndpointErrors(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPatch, "/automation/conflicts/999",
		map[string]any{"action": "DISMISSED", "resolved_by": "staff1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodPatch, "/automation/conflicts/1",
		map[string]any{"action": "CLOSED", "resolved_by": "staff1"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, s, http.MethodPatch, "/automation/conflicts/1",
		map[string]any{"action": "RESOLVED", "resolved_by": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, s, http.MethodPatch, "/automation/conflicts/abc",
		map[string]any{"action": "DISMISSED", "resolved_by": "staff1"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSubmitFactEndpoint(t *testing.T) {
	s, db := newTestServer(t)
	entityID, _ := db.CreateEntity(database.KindGroup, "BTS")

	w := doJSON(t, s, http.MethodPost, "/automation/facts", map[string]any{
		"entity":             map[string]any{"id": entityID},
		"field":              "fandom_name",
		"value":              "ARMY",
		"confidence":         0.9,
		"source_reliability": 0.8,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]any
	decode(t, w, &out)
	assert.Equal(t, "filled", out["outcome"])

	value, _ := db.GetEntityField(entityID, "fandom_name")
	require.NotNil(t, value)
	assert.Equal(t, "ARMY", *value)
}

func TestSubmitFactValidation(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/automation/facts", map[string]any{
		"entity":             map[string]any{"id": 1},
		"field":              "agency",
		"value":              "HYBE",
		"confidence":         1.5,
		"source_reliability": 0.8,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSubmitFactDanglingEntity(t *testing.T) {
	s, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/automation/facts", map[string]any{
		"entity":             map[string]any{"id": 42},
		"field":              "agency",
		"value":              "HYBE",
		"confidence":         0.9,
		"source_reliability": 0.8,
	})
	require.Equal(t, http.StatusConflict, w.Code)

	var out map[string]any
	decode(t, w, &out)
	assert.Equal(t, true, out["retryable"])
}

func TestGetEntityEndpoint(t *testing.T) {
	s, db := newTestServer(t)
	entityID, _ := db.CreateEntity(database.KindGroup, "BTS")
	db.ApplyFieldResolution(database.FieldResolution{
		EntityKind: database.KindGroup, EntityID: entityID,
		FieldName: "agency", NewValue: "HYBE", Type: database.ResolutionFill,
	})

	w := doJSON(t, s, http.MethodGet, "/entities/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Name   string            `json:"name"`
		Fields map[string]string `json:"fields"`
	}
	decode(t, w, &out)
	assert.Equal(t, "BTS", out.Name)
	assert.Equal(t, "HYBE", out.Fields["agency"])

	w = doJSON(t, s, http.MethodGet, "/entities/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetArticleEndpoint(t *testing.T) {
	s, db := newTestServer(t)
	articleID, err := db.InsertArticle("https://example.com/comeback", "Comeback announced", nil, 0.8, nil)
	require.NoError(t, err)

	w := doJSON(t, s, http.MethodGet, "/articles/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		ID    int64  `json:"id"`
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	decode(t, w, &out)
	assert.Equal(t, articleID, out.ID)
	assert.Equal(t, "https://example.com/comeback", out.URL)
	assert.Equal(t, "Comeback announced", out.Title)

	w = doJSON(t, s, http.MethodGet, "/articles/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodGet, "/articles/abc", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
