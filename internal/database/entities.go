package database

import (
	"database/sql"
	"strings"
)

// CreateEntity inserts a new entity. Returns ErrEntityNotWritable if an
// entity of the same kind and name already exists.
func (db *DB) CreateEntity(kind, name string) (int64, error) {
	result, err := db.conn.Exec(
		"INSERT INTO entities (kind, name) VALUES (?, ?)", kind, name,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrEntityNotWritable
		}
		return 0, err
	}
	return result.LastInsertId()
}

// GetEntityByID returns an entity by id, or nil if it does not exist.
func (db *DB) GetEntityByID(id int64) (*Entity, error) {
	row := db.conn.QueryRow(
		`SELECT id, kind, name, verified, reliability_score, created_at
		FROM entities WHERE id = ?`, id,
	)
	return scanEntity(row)
}

// GetEntityByName returns an entity by kind and exact name, or nil.
// Fuzzy name matching happens upstream; by the time a candidate fact reaches
// this store the reference is either an id or a canonical name.
func (db *DB) GetEntityByName(kind, name string) (*Entity, error) {
	row := db.conn.QueryRow(
		`SELECT id, kind, name, verified, reliability_score, created_at
		FROM entities WHERE kind = ? AND name = ?`, kind, name,
	)
	return scanEntity(row)
}

// GetEntityField returns the current value of a field, or nil if the field
// is absent or empty.
func (db *DB) GetEntityField(entityID int64, fieldName string) (*string, error) {
	var value sql.NullString
	err := db.conn.QueryRow(
		"SELECT value FROM entity_fields WHERE entity_id = ? AND field_name = ?",
		entityID, fieldName,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	v := value.String
	return &v, nil
}

// GetEntityFields returns all non-empty fields of an entity.
func (db *DB) GetEntityFields(entityID int64) (map[string]string, error) {
	rows, err := db.conn.Query(
		"SELECT field_name, value FROM entity_fields WHERE entity_id = ? AND value IS NOT NULL AND value != ''",
		entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		fields[name] = value
	}
	return fields, rows.Err()
}

// setFieldTx upserts a field value inside an open transaction. A foreign key
// failure means the entity vanished under us and maps to ErrEntityNotWritable.
func setFieldTx(tx *sql.Tx, entityID int64, fieldName, value string) error {
	_, err := tx.Exec(
		`INSERT INTO entity_fields (entity_id, field_name, value, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(entity_id, field_name)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		entityID, fieldName, value,
	)
	if err != nil && isForeignKeyViolation(err) {
		return ErrEntityNotWritable
	}
	return err
}

func scanEntity(row *sql.Row) (*Entity, error) {
	var e Entity
	var verified int
	err := row.Scan(&e.ID, &e.Kind, &e.Name, &verified, &e.ReliabilityScore, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Verified = verified != 0
	return &e, nil
}

// modernc.org/sqlite reports constraint failures as plain error strings.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
