//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/pagegraph/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS blocks_fts USING fts5(
			page UNINDEXED,
			block UNINDEXED,
			title,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, p *models.Page) error {
	_, _ = tx.Exec(`DELETE FROM blocks_fts WHERE page = ?`, p.Path)
	if len(p.Blocks) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT INTO blocks_fts (page, block, title, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare fts insert: %w", err)
	}
	defer stmt.Close()
	for i := range p.Blocks {
		if _, err := stmt.Exec(p.Path, p.Blocks[i].ID, p.Title, p.Blocks[i].Content); err != nil {
			return fmt.Errorf("index: upsert fts: %w", err)
		}
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) error {
	_, _ = tx.Exec(`DELETE FROM blocks_fts WHERE page = ?`, path)
	return nil
}

func ftsReset(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM blocks_fts`); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search over block content and returns
// matching blocks with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT page,
		       title,
		       block,
		       snippet(blocks_fts, 3, '<b>', '</b>', '...', 32)
		FROM blocks_fts
		WHERE blocks_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Title, &r.BlockID, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
