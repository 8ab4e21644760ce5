package database

import "database/sql"

// InsertArticle inserts an article. Returns the ID on success, 0 if duplicate.
func (db *DB) InsertArticle(url, title string, source *string, reliability float64, publishedDate *string) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO articles (url, title, source, reliability, published_date)
		VALUES (?, ?, ?, ?, ?)`,
		url, title, source, reliability, publishedDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, nil
		}
		return 0, err
	}
	return result.LastInsertId()
}

// GetArticleByID returns a single article by ID, or nil if it does not exist.
func (db *DB) GetArticleByID(articleID int64) (*Article, error) {
	row := db.conn.QueryRow(
		`SELECT id, url, title, source, reliability, published_date, collected_at
		FROM articles WHERE id = ?`, articleID,
	)
	var a Article
	err := row.Scan(&a.ID, &a.URL, &a.Title, &a.Source, &a.Reliability, &a.PublishedDate, &a.CollectedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
