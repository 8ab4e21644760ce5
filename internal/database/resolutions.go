package database

import (
	"database/sql"
	"fmt"
)

// The audit log is append-only by construction: this file exposes the two
// transactional apply operations and read queries. No update or delete
// against auto_resolution_logs exists anywhere in the package.

// FieldResolution describes one FILL or RECONCILE decision: a single field
// write plus its audit record.
type FieldResolution struct {
	ArticleID         *int64
	EntityKind        string
	EntityID          int64
	FieldName         string
	OldValue          *string
	NewValue          string
	Type              string
	Reasoning         string
	Confidence        float64
	SourceReliability float64
}

// Enrollment describes one ENROLL decision: a new entity with a single field
// populated, plus its audit record.
type Enrollment struct {
	ArticleID         *int64
	Kind              string
	Name              string
	FieldName         string
	Value             string
	Reasoning         string
	Confidence        float64
	SourceReliability float64
}

// ApplyFieldResolution writes the field value and appends the audit record in
// one transaction. On any failure neither survives, so the entity store and
// the audit log never diverge.
func (db *DB) ApplyFieldResolution(p FieldResolution) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}

	if err := setFieldTx(tx, p.EntityID, p.FieldName, p.NewValue); err != nil {
		tx.Rollback()
		return 0, err
	}

	logID, err := insertResolutionLogTx(tx, p.ArticleID, p.EntityKind, p.EntityID,
		p.FieldName, p.OldValue, p.NewValue, p.Type, p.Reasoning, p.Confidence, p.SourceReliability)
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return logID, nil
}

// EnrollEntity creates the entity, populates its first field and appends the
// ENROLL audit record in one transaction. If another writer enrolled the same
// kind+name in the meantime, ErrEntityNotWritable is returned and the caller
// should retry against the now-existing entity.
func (db *DB) EnrollEntity(p Enrollment) (entityID, logID int64, err error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, 0, err
	}

	result, err := tx.Exec("INSERT INTO entities (kind, name) VALUES (?, ?)", p.Kind, p.Name)
	if err != nil {
		tx.Rollback()
		if isUniqueViolation(err) {
			return 0, 0, ErrEntityNotWritable
		}
		return 0, 0, err
	}
	entityID, err = result.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, 0, err
	}

	if err := setFieldTx(tx, entityID, p.FieldName, p.Value); err != nil {
		tx.Rollback()
		return 0, 0, err
	}

	logID, err = insertResolutionLogTx(tx, p.ArticleID, p.Kind, entityID,
		p.FieldName, nil, p.Value, ResolutionEnroll, p.Reasoning, p.Confidence, p.SourceReliability)
	if err != nil {
		tx.Rollback()
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return entityID, logID, nil
}

func insertResolutionLogTx(tx *sql.Tx, articleID *int64, entityKind string, entityID int64,
	fieldName string, oldValue *string, newValue, resolutionType, reasoning string,
	confidence, sourceReliability float64) (int64, error) {

	result, err := tx.Exec(
		`INSERT INTO auto_resolution_logs
		(article_id, entity_kind, entity_id, field_name, old_value, new_value,
		 resolution_type, reasoning, confidence, source_reliability)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		articleID, entityKind, entityID, fieldName, oldValue, newValue,
		resolutionType, reasoning, confidence, sourceReliability,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ResolutionFeed returns audit records newest-first, optionally filtered by
// resolution type, joined with article titles for review context.
func (db *DB) ResolutionFeed(resolutionType *string, limit, offset int) ([]ResolutionLogEntry, error) {
	query := `SELECT arl.id, arl.article_id, a.title, arl.entity_kind, arl.entity_id,
		arl.field_name, arl.old_value, arl.new_value, arl.resolution_type,
		arl.reasoning, arl.confidence, arl.source_reliability, arl.created_at
		FROM auto_resolution_logs arl
		LEFT JOIN articles a ON a.id = arl.article_id`
	var args []any
	if resolutionType != nil {
		query += " WHERE arl.resolution_type = ?"
		args = append(args, *resolutionType)
	}
	query += " ORDER BY arl.created_at DESC, arl.id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ResolutionLogEntry
	for rows.Next() {
		var e ResolutionLogEntry
		var confidence sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.ArticleID, &e.ArticleTitle, &e.EntityKind, &e.EntityID,
			&e.FieldName, &e.OldValue, &e.NewValue, &e.ResolutionType,
			&e.Reasoning, &confidence, &e.SourceReliability, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Confidence = confidence.Float64
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AutomationSummary aggregates decisions and conflict activity over the
// trailing window for the dashboard status card.
func (db *DB) AutomationSummary(windowHours int) (*Summary, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	cutoff := fmt.Sprintf("-%d hours", windowHours)
	s := &Summary{WindowHours: windowHours}

	rows, err := db.conn.Query(
		`SELECT resolution_type, COUNT(*) FROM auto_resolution_logs
		WHERE created_at >= datetime('now', ?) GROUP BY resolution_type`, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rt string
		var count int
		if err := rows.Scan(&rt, &count); err != nil {
			return nil, err
		}
		switch rt {
		case ResolutionFill:
			s.FillCount = count
		case ResolutionReconcile:
			s.ReconcileCount = count
		case ResolutionEnroll:
			s.EnrollCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.TotalDecisions = s.FillCount + s.ReconcileCount + s.EnrollCount

	err = db.conn.QueryRow(
		`SELECT COUNT(*) FROM conflict_flags
		WHERE resolved_at >= datetime('now', ?) AND status IN ('RESOLVED', 'DISMISSED')`, cutoff,
	).Scan(&s.ConflictsResolved)
	if err != nil {
		return nil, err
	}

	err = db.conn.QueryRow(
		"SELECT COUNT(*) FROM conflict_flags WHERE status = 'OPEN'",
	).Scan(&s.OpenConflicts)
	if err != nil {
		return nil, err
	}

	err = db.conn.QueryRow(
		`SELECT COALESCE(AVG(source_reliability), 0) FROM auto_resolution_logs
		WHERE created_at >= datetime('now', ?)`, cutoff,
	).Scan(&s.AvgReliability)
	if err != nil {
		return nil, err
	}

	return s, nil
}
