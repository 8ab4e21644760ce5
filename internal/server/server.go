// Package server exposes the review API consumed by the admin dashboard:
// the automation summary, the decision feed, the conflict queue and its
// resolution endpoint, and a direct fact submission endpoint for the
// extraction worker.
package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwhan-dev/selfheal/internal/database"
	"github.com/jwhan-dev/selfheal/internal/engine"
	"github.com/jwhan-dev/selfheal/internal/intake"
)

// Server is the HTTP review API.
type Server struct {
	db  *database.DB
	eng *engine.Engine
}

// New creates a new Server.
func New(db *database.DB, eng *engine.Engine) *Server {
	return &Server{db: db, eng: eng}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/automation/summary", s.handleSummary)
	r.GET("/automation/feed", s.handleFeed)
	r.GET("/automation/conflicts", s.handleConflicts)
	r.PATCH("/automation/conflicts/:id", s.handleResolveConflict)
	r.POST("/automation/facts", s.handleSubmitFact)
	r.GET("/entities/:id", s.handleGetEntity)
	r.GET("/articles/:id", s.handleGetArticle)

	return r
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, eng *engine.Engine, port int) error {
	srv := New(db, eng)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Review API listening on http://%s", addr)
	return srv.Router().Run(addr)
}

func (s *Server) handleSummary(c *gin.Context) {
	windowHours, err := strconv.Atoi(c.DefaultQuery("window_hours", "24"))
	if err != nil || windowHours <= 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "window_hours must be a positive integer"})
		return
	}

	summary, err := s.db.AutomationSummary(windowHours)
	if err != nil {
		log.Printf("Error building automation summary: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build summary"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

type feedEntry struct {
	ID                int64   `json:"id"`
	ArticleID         *int64  `json:"article_id"`
	ArticleTitle      *string `json:"article_title"`
	EntityKind        string  `json:"entity_kind"`
	EntityID          int64   `json:"entity_id"`
	FieldName         string  `json:"field_name"`
	OldValue          *string `json:"old_value"`
	NewValue          string  `json:"new_value"`
	ResolutionType    string  `json:"resolution_type"`
	Reasoning         *string `json:"reasoning"`
	Confidence        float64 `json:"confidence"`
	SourceReliability float64 `json:"source_reliability"`
	CreatedAt         *string `json:"created_at"`
}

func (s *Server) handleFeed(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}

	var resolutionType *string
	if rt := c.Query("resolution_type"); rt != "" {
		if rt != database.ResolutionFill && rt != database.ResolutionReconcile && rt != database.ResolutionEnroll {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "resolution_type must be FILL, RECONCILE or ENROLL"})
			return
		}
		resolutionType = &rt
	}

	entries, err := s.db.ResolutionFeed(resolutionType, limit, offset)
	if err != nil {
		log.Printf("Error reading resolution feed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read feed"})
		return
	}

	out := make([]feedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, feedEntry{
			ID:                e.ID,
			ArticleID:         e.ArticleID,
			ArticleTitle:      e.ArticleTitle,
			EntityKind:        e.EntityKind,
			EntityID:          e.EntityID,
			FieldName:         e.FieldName,
			OldValue:          e.OldValue,
			NewValue:          e.NewValue,
			ResolutionType:    e.ResolutionType,
			Reasoning:         e.Reasoning,
			Confidence:        e.Confidence,
			SourceReliability: e.SourceReliability,
			CreatedAt:         e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

type conflictEntry struct {
	ID               int64   `json:"id"`
	ArticleID        *int64  `json:"article_id"`
	ArticleTitle     *string `json:"article_title"`
	EntityKind       string  `json:"entity_kind"`
	EntityID         *int64  `json:"entity_id"`
	EntityName       string  `json:"entity_name"`
	FieldName        string  `json:"field_name"`
	ExistingValue    *string `json:"existing_value"`
	ConflictingValue string  `json:"conflicting_value"`
	Reason           *string `json:"reason"`
	ConflictScore    float64 `json:"conflict_score"`
	Status           string  `json:"status"`
	ResolvedBy       *string `json:"resolved_by"`
	ResolvedAt       *string `json:"resolved_at"`
	CreatedAt        *string `json:"created_at"`
}

func (s *Server) handleConflicts(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}

	status := c.DefaultQuery("status", database.ConflictOpen)
	if status != database.ConflictOpen && status != database.ConflictResolved && status != database.ConflictDismissed {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "status must be OPEN, RESOLVED or DISMISSED"})
		return
	}

	flags, err := s.db.Conflicts(status, limit, offset)
	if err != nil {
		log.Printf("Error reading conflict flags: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read conflicts"})
		return
	}

	out := make([]conflictEntry, 0, len(flags))
	for _, f := range flags {
		out = append(out, conflictToEntry(f))
	}
	c.JSON(http.StatusOK, out)
}

type resolveRequest struct {
	Action      string  `json:"action"`
	ResolvedBy  string  `json:"resolved_by"`
	ChosenValue *string `json:"chosen_value"`
}

func (s *Server) handleResolveConflict(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid conflict id"})
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	flag, err := s.db.ResolveConflict(id, req.Action, req.ResolvedBy, req.ChosenValue)
	switch {
	case errors.Is(err, database.ErrInvalidInput):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case errors.Is(err, database.ErrConflictNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("conflict %d not found", id)})
		return
	case errors.Is(err, database.ErrAlreadyResolved):
		// Benign UI race (double submit): report as already handled.
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Printf("Error resolving conflict %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve conflict"})
		return
	}

	c.JSON(http.StatusOK, conflictToEntry(*flag))
}

type factRequest struct {
	ArticleID         *int64           `json:"article_id"`
	Entity            intake.EntityRef `json:"entity"`
	Field             string           `json:"field"`
	Value             string           `json:"value"`
	Confidence        float64          `json:"confidence"`
	SourceReliability float64          `json:"source_reliability"`
	Reasoning         string           `json:"reasoning"`
}

func (s *Server) handleSubmitFact(c *gin.Context) {
	var req factRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	fact, err := intake.New(req.ArticleID, req.Entity, req.Field, req.Value,
		req.Confidence, req.SourceReliability, req.Reasoning)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	decision, err := s.eng.Resolve(fact)
	switch {
	case errors.Is(err, database.ErrEntityNotWritable):
		// Retryable: the entity vanished between extraction and now.
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retryable": true})
		return
	case err != nil:
		log.Printf("Error resolving submitted fact: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve fact"})
		return
	}

	c.JSON(http.StatusOK, decisionJSON(decision))
}

func (s *Server) handleGetEntity(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid entity id"})
		return
	}

	entity, err := s.db.GetEntityByID(id)
	if err != nil {
		log.Printf("Error reading entity %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read entity"})
		return
	}
	if entity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("entity %d not found", id)})
		return
	}

	fields, err := s.db.GetEntityFields(id)
	if err != nil {
		log.Printf("Error reading fields of entity %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read entity fields"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                entity.ID,
		"kind":              entity.Kind,
		"name":              entity.Name,
		"verified":          entity.Verified,
		"reliability_score": entity.ReliabilityScore,
		"created_at":        entity.CreatedAt,
		"fields":            fields,
	})
}

// handleGetArticle returns the source article behind a feed or conflict row.
func (s *Server) handleGetArticle(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid article id"})
		return
	}

	article, err := s.db.GetArticleByID(id)
	if err != nil {
		log.Printf("Error reading article %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read article"})
		return
	}
	if article == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("article %d not found", id)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":             article.ID,
		"url":            article.URL,
		"title":          article.Title,
		"source":         article.Source,
		"reliability":    article.Reliability,
		"published_date": article.PublishedDate,
		"collected_at":   article.CollectedAt,
	})
}

// pagination parses limit/offset query params with the review UI's bounds
// (limit 1..200, default 50). On failure it writes the error response itself.
func pagination(c *gin.Context) (limit, offset int, ok bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 200 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "limit must be between 1 and 200"})
		return 0, 0, false
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "offset must be >= 0"})
		return 0, 0, false
	}
	return limit, offset, true
}

func conflictToEntry(f database.ConflictFlag) conflictEntry {
	return conflictEntry{
		ID:               f.ID,
		ArticleID:        f.ArticleID,
		ArticleTitle:     f.ArticleTitle,
		EntityKind:       f.EntityKind,
		EntityID:         f.EntityID,
		EntityName:       f.EntityName,
		FieldName:        f.FieldName,
		ExistingValue:    f.ExistingValue,
		ConflictingValue: f.ConflictingValue,
		Reason:           f.Reason,
		ConflictScore:    f.ConflictScore,
		Status:           f.Status,
		ResolvedBy:       f.ResolvedBy,
		ResolvedAt:       f.ResolvedAt,
		CreatedAt:        f.CreatedAt,
	}
}

func decisionJSON(d engine.Decision) gin.H {
	switch v := d.(type) {
	case engine.Filled:
		return gin.H{"outcome": v.Outcome(), "entity_id": v.EntityID, "field_name": v.FieldName, "value": v.Value, "log_id": v.LogID}
	case engine.Reconciled:
		return gin.H{"outcome": v.Outcome(), "entity_id": v.EntityID, "field_name": v.FieldName, "old_value": v.OldValue, "new_value": v.NewValue, "log_id": v.LogID}
	case engine.Enrolled:
		return gin.H{"outcome": v.Outcome(), "entity_id": v.EntityID, "kind": v.Kind, "name": v.Name, "field_name": v.FieldName, "value": v.Value, "log_id": v.LogID}
	case engine.Flagged:
		return gin.H{"outcome": v.Outcome(), "flag_id": v.FlagID, "conflict_score": v.ConflictScore, "reason": v.Reason}
	case engine.Unchanged:
		return gin.H{"outcome": v.Outcome(), "entity_id": v.EntityID, "field_name": v.FieldName}
	default:
		return gin.H{"outcome": d.Outcome()}
	}
}
