package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scanixapp/scanix-server/internal/domain"
	"github.com/scanixapp/scanix-server/internal/store"
)

const scanColumns = `id, name, created_at, updated_at`

const pageColumns = `id, scan_id, sort_order, image, width, height, blur_hash, created_at`

// LoadScans implements store.Repository.
func (s *Store) LoadScans(ctx context.Context) ([]*domain.Scan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scanColumns+` FROM scans ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	var scans []*domain.Scan
	byID := make(map[string]*domain.Scan)
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
		byID[scan.ID] = scan
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}

	pageRows, err := s.db.QueryContext(ctx, `SELECT `+pageColumns+` FROM pages ORDER BY scan_id, sort_order`)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer pageRows.Close()

	for pageRows.Next() {
		p, err := scanPage(pageRows)
		if err != nil {
			return nil, err
		}
		if scan, ok := byID[p.ScanID]; ok {
			scan.Pages = append(scan.Pages, p)
		}
	}
	if err := pageRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}

	return scans, nil
}

// GetScan implements store.Repository.
func (s *Store) GetScan(ctx context.Context, id string) (*domain.Scan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = ?`, id)
	scan, err := scanScan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithCause(fmt.Errorf("scan %s", id))
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE scan_id = ? ORDER BY sort_order`, id)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		scan.Pages = append(scan.Pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}

	return scan, nil
}

// SaveScan implements store.Repository. The scan row is upserted and its
// page rows are replaced in a single transaction.
func (s *Store) SaveScan(ctx context.Context, scan *domain.Scan) error {
	if scan == nil || scan.ID == "" {
		return store.ErrInvalidInput.WithCause(errors.New("scan id is required"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scans (`+scanColumns+`) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at`,
		scan.ID, scan.Name, formatTime(scan.CreatedAt), formatTime(scan.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert scan %s: %w", scan.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE scan_id = ?`, scan.ID); err != nil {
		return fmt.Errorf("clear pages of %s: %w", scan.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO pages (`+pageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare page insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range scan.Pages {
		_, err := stmt.ExecContext(ctx,
			p.ID, scan.ID, p.Order, p.Image, p.Width, p.Height,
			nullString(p.BlurHash), formatTime(p.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert page %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scan %s: %w", scan.ID, err)
	}
	return nil
}

// DeleteScan implements store.Repository. Pages go with the scan via
// ON DELETE CASCADE.
func (s *Store) DeleteScan(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete scan %s: %w", id, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanScan(row rowScanner) (*domain.Scan, error) {
	var (
		scan             domain.Scan
		created, updated string
	)
	if err := row.Scan(&scan.ID, &scan.Name, &created, &updated); err != nil {
		return nil, err
	}

	var err error
	if scan.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", scan.ID, err)
	}
	if scan.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at of %s: %w", scan.ID, err)
	}
	return &scan, nil
}

func scanPage(row rowScanner) (*domain.Page, error) {
	var (
		p        domain.Page
		blurHash sql.NullString
		created  string
	)
	if err := row.Scan(&p.ID, &p.ScanID, &p.Order, &p.Image, &p.Width, &p.Height, &blurHash, &created); err != nil {
		return nil, fmt.Errorf("scan page row: %w", err)
	}

	p.BlurHash = blurHash.String
	if len(p.Image) == 0 {
		p.Image = nil
	}

	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at of page %s: %w", p.ID, err)
	}
	return &p, nil
}
