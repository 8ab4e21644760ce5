package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// ConflictInsert describes a new OPEN conflict flag.
type ConflictInsert struct {
	ArticleID        *int64
	EntityKind       string
	EntityID         *int64
	EntityName       string
	FieldName        string
	ExistingValue    *string
	ConflictingValue string
	Reason           string
	ConflictScore    float64
}

// InsertConflictFlag records a disputed field change for human review.
func (db *DB) InsertConflictFlag(p ConflictInsert) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO conflict_flags
		(article_id, entity_kind, entity_id, entity_name, field_name,
		 existing_value, conflicting_value, reason, conflict_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ArticleID, p.EntityKind, p.EntityID, p.EntityName, p.FieldName,
		p.ExistingValue, p.ConflictingValue, p.Reason, p.ConflictScore,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// Conflicts returns flags with the given status, most severe first.
func (db *DB) Conflicts(status string, limit, offset int) ([]ConflictFlag, error) {
	rows, err := db.conn.Query(
		`SELECT cf.id, cf.article_id, a.title, cf.entity_kind, cf.entity_id, cf.entity_name,
		cf.field_name, cf.existing_value, cf.conflicting_value, cf.reason, cf.conflict_score,
		cf.status, cf.resolved_by, cf.resolved_at, cf.created_at
		FROM conflict_flags cf
		LEFT JOIN articles a ON a.id = cf.article_id
		WHERE cf.status = ?
		ORDER BY cf.conflict_score DESC, cf.created_at DESC
		LIMIT ? OFFSET ?`, status, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []ConflictFlag
	for rows.Next() {
		var f ConflictFlag
		if err := rows.Scan(&f.ID, &f.ArticleID, &f.ArticleTitle, &f.EntityKind, &f.EntityID,
			&f.EntityName, &f.FieldName, &f.ExistingValue, &f.ConflictingValue, &f.Reason,
			&f.ConflictScore, &f.Status, &f.ResolvedBy, &f.ResolvedAt, &f.CreatedAt); err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// GetConflictByID returns a single flag by ID, or nil if it does not exist.
func (db *DB) GetConflictByID(id int64) (*ConflictFlag, error) {
	row := db.conn.QueryRow(
		`SELECT cf.id, cf.article_id, a.title, cf.entity_kind, cf.entity_id, cf.entity_name,
		cf.field_name, cf.existing_value, cf.conflicting_value, cf.reason, cf.conflict_score,
		cf.status, cf.resolved_by, cf.resolved_at, cf.created_at
		FROM conflict_flags cf
		LEFT JOIN articles a ON a.id = cf.article_id
		WHERE cf.id = ?`, id,
	)
	var f ConflictFlag
	err := row.Scan(&f.ID, &f.ArticleID, &f.ArticleTitle, &f.EntityKind, &f.EntityID,
		&f.EntityName, &f.FieldName, &f.ExistingValue, &f.ConflictingValue, &f.Reason,
		&f.ConflictScore, &f.Status, &f.ResolvedBy, &f.ResolvedAt, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ResolveConflict transitions an OPEN flag to RESOLVED or DISMISSED, exactly
// once. RESOLVED writes the human-chosen value into the entity in the same
// transaction; a flag raised on a not-yet-existing entity enrolls it first.
// DISMISSED mutates nothing beyond the flag itself.
//
// Concurrent attempts on the same flag have exactly one winner: the
// transition is a single conditional UPDATE, and losers observe
// ErrAlreadyResolved.
func (db *DB) ResolveConflict(id int64, action, resolvedBy string, chosenValue *string) (*ConflictFlag, error) {
	if action != ConflictResolved && action != ConflictDismissed {
		return nil, fmt.Errorf("%w: action must be RESOLVED or DISMISSED, got %q", ErrInvalidInput, action)
	}
	if strings.TrimSpace(resolvedBy) == "" {
		return nil, fmt.Errorf("%w: resolved_by is required", ErrInvalidInput)
	}
	if action == ConflictResolved && (chosenValue == nil || strings.TrimSpace(*chosenValue) == "") {
		return nil, fmt.Errorf("%w: chosen_value is required when resolving", ErrInvalidInput)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}

	result, err := tx.Exec(
		`UPDATE conflict_flags
		SET status = ?, resolved_by = ?, resolved_at = datetime('now')
		WHERE id = ? AND status = 'OPEN'`,
		action, resolvedBy, id,
	)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if affected == 0 {
		var status string
		scanErr := tx.QueryRow("SELECT status FROM conflict_flags WHERE id = ?", id).Scan(&status)
		tx.Rollback()
		if scanErr == sql.ErrNoRows {
			return nil, ErrConflictNotFound
		}
		if scanErr != nil {
			return nil, scanErr
		}
		return nil, fmt.Errorf("%w: status is %s", ErrAlreadyResolved, status)
	}

	if action == ConflictResolved {
		if err := applyChosenValueTx(tx, id, *chosenValue); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return db.GetConflictByID(id)
}

// applyChosenValueTx writes the chosen value into the flagged entity field.
// Flags without an entity id (low-confidence unknown entities) enroll the
// entity under its proposed kind+name first.
func applyChosenValueTx(tx *sql.Tx, flagID int64, chosenValue string) error {
	var entityKind, entityName, fieldName string
	var entityID sql.NullInt64
	err := tx.QueryRow(
		"SELECT entity_kind, entity_id, entity_name, field_name FROM conflict_flags WHERE id = ?",
		flagID,
	).Scan(&entityKind, &entityID, &entityName, &fieldName)
	if err != nil {
		return err
	}

	targetID := entityID.Int64
	if !entityID.Valid {
		err := tx.QueryRow(
			"SELECT id FROM entities WHERE kind = ? AND name = ?", entityKind, entityName,
		).Scan(&targetID)
		if err == sql.ErrNoRows {
			result, insErr := tx.Exec("INSERT INTO entities (kind, name) VALUES (?, ?)", entityKind, entityName)
			if insErr != nil {
				return insErr
			}
			targetID, insErr = result.LastInsertId()
			if insErr != nil {
				return insErr
			}
		} else if err != nil {
			return err
		}
		// Backfill the id so the review UI can link the flag to the entity.
		if _, err := tx.Exec("UPDATE conflict_flags SET entity_id = ? WHERE id = ?", targetID, flagID); err != nil {
			return err
		}
	}

	return setFieldTx(tx, targetID, fieldName, chosenValue)
}
