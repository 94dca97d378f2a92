package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/pagegraph/internal/apperr"
	"github.com/starford/pagegraph/internal/graph"
	"github.com/starford/pagegraph/internal/models"
)

// PageRow represents a row in the pages table.
type PageRow struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	Aliases   []string  `json:"aliases"`
	Public    bool      `json:"public"`
	Blocks    int       `json:"block_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LinkRow represents one stored edge.
type LinkRow struct {
	Source string         `json:"source"`
	Target string         `json:"target"`
	Kind   models.RefKind `json:"kind"`
	Block  string         `json:"block"`
}

// SearchResult represents one block search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	BlockID string `json:"block_id"`
	Snippet string `json:"snippet"`
}

// Counts summarises the mirror contents.
type Counts struct {
	Pages  int `json:"pages"`
	Blocks int `json:"blocks"`
	Links  int `json:"links"`
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Prepare(query string) (*sql.Stmt, error)
}

// SavePage inserts or replaces a page, its blocks, its FTS entries and its
// outbound edges within a transaction.
func (db *DB) SavePage(p *models.Page, edges []graph.Edge) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := writePage(tx, p, edges, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

// DeletePage removes a page with its blocks and outgoing edges. Edges from
// other pages that pointed at it become dangling, and block references into
// it are dropped, matching what the in-memory graph does on removal.
func (db *DB) DeletePage(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deletePage(tx, path); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM links WHERE target = ? AND to_block = 1`, path); err != nil {
		return fmt.Errorf("index: drop block links: %w", err)
	}
	if _, err := tx.Exec(`UPDATE links SET target = ? || name WHERE target = ?`, graph.SentinelPrefix, path); err != nil {
		return fmt.Errorf("index: mark dangling: %w", err)
	}
	return tx.Commit()
}

// ReplaceAll swaps the whole mirror for the contents of g.
func (db *DB) ReplaceAll(g *graph.Graph) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{`DELETE FROM links`, `DELETE FROM blocks`, `DELETE FROM pages`} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("index: clear: %w", err)
		}
	}
	if err := ftsReset(tx); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, p := range g.Pages() {
		if err := writePage(tx, p, g.OutEdges(p.Path), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func deletePage(tx *sql.Tx, path string) error {
	if err := ftsDelete(tx, path); err != nil {
		return err
	}
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM blocks WHERE page = ?`, path)
	if _, err := tx.Exec(`DELETE FROM pages WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete page: %w", err)
	}
	return nil
}

func writePage(tx *sql.Tx, p *models.Page, edges []graph.Edge, now time.Time) error {
	tagsJSON, _ := json.Marshal(orEmpty(p.Tags))
	aliasesJSON, _ := json.Marshal(orEmpty(p.Aliases))

	_, err := tx.Exec(`
		INSERT INTO pages (path, title, checksum, tags, aliases, public, block_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title       = excluded.title,
			checksum    = excluded.checksum,
			tags        = excluded.tags,
			aliases     = excluded.aliases,
			public      = excluded.public,
			block_count = excluded.block_count,
			updated_at  = excluded.updated_at
	`, p.Path, p.Title, p.Checksum, string(tagsJSON), string(aliasesJSON), p.Public, len(p.Blocks), now)
	if err != nil {
		return fmt.Errorf("index: upsert page: %w", err)
	}

	// Replace blocks and links: delete old then bulk insert.
	_, _ = tx.Exec(`DELETE FROM blocks WHERE page = ?`, p.Path)
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, p.Path)
	if err := insertBlocks(tx, p); err != nil {
		return err
	}
	if err := insertLinks(tx, p.Path, edges); err != nil {
		return err
	}
	// FTS upsert (LIKE fallback reads the blocks table directly).
	return ftsUpsert(tx, p)
}

func insertBlocks(tx execer, p *models.Page) error {
	if len(p.Blocks) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT INTO blocks (page, id, parent, depth, position, task, content) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare block insert: %w", err)
	}
	defer stmt.Close()
	for i := range p.Blocks {
		b := &p.Blocks[i]
		parent := ""
		if pb, ok := p.Parent(b); ok {
			parent = pb.ID
		}
		if _, err := stmt.Exec(p.Path, b.ID, parent, b.Depth, i, string(b.Task), b.Content); err != nil {
			return fmt.Errorf("index: insert block: %w", err)
		}
	}
	return nil
}

func insertLinks(tx execer, source string, edges []graph.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT INTO links (source, target, name, kind, block, to_block, position) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare link insert: %w", err)
	}
	defer stmt.Close()
	for i, e := range edges {
		if _, err := stmt.Exec(source, e.Target, e.Ref.Target, string(e.Ref.Kind), e.Ref.Source, e.Ref.TargetsBlock(), i); err != nil {
			return fmt.Errorf("index: insert link: %w", err)
		}
	}
	return nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// GetPage returns the stored page row, or apperr.ErrNotFound.
func (db *DB) GetPage(path string) (*PageRow, error) {
	var (
		r             PageRow
		tags, aliases string
	)
	err := db.conn.QueryRow(`
		SELECT path, title, checksum, tags, aliases, public, block_count, updated_at
		FROM pages WHERE path = ?
	`, path).Scan(&r.Path, &r.Title, &r.Checksum, &tags, &aliases, &r.Public, &r.Blocks, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: page %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get page: %w", err)
	}
	_ = json.Unmarshal([]byte(tags), &r.Tags)
	_ = json.Unmarshal([]byte(aliases), &r.Aliases)
	return &r, nil
}

// AllChecksums returns path → checksum for every stored page.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM pages`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Backlinks returns every stored edge pointing at target, ordered by source
// path and then by position on the source page.
func (db *DB) Backlinks(target string) ([]LinkRow, error) {
	rows, err := db.conn.Query(`
		SELECT source, target, kind, block FROM links
		WHERE target = ?
		ORDER BY source, position
	`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []LinkRow
	for rows.Next() {
		var l LinkRow
		if err := rows.Scan(&l.Source, &l.Target, &l.Kind, &l.Block); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Counts returns the number of stored pages, blocks and links.
func (db *DB) Counts() (Counts, error) {
	var c Counts
	err := db.conn.QueryRow(`
		SELECT (SELECT count(*) FROM pages),
		       (SELECT count(*) FROM blocks),
		       (SELECT count(*) FROM links)
	`).Scan(&c.Pages, &c.Blocks, &c.Links)
	if err != nil {
		return Counts{}, fmt.Errorf("index: counts: %w", err)
	}
	return c, nil
}
