// Package sqlite is the embedded metadata store: a single database file next
// to the blobs, opened through database/sql with the modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

// Repository implements simplemedia.Repository on SQLite
type Repository struct {
	db *sql.DB
}

// Open opens the database file, creating it if needed, and applies the
// schema migrations.
func Open(path string) (*Repository, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	if err := migrateDSN(dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// Tune connection pool for local usage.
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve db path: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// handleSQLiteError converts constraint violations to repository errors
func handleSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return simplemedia.ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", simplemedia.ErrDuplicate, err)
		}
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// File operations

const fileColumns = `name, id, size, hash, extension, type, url, mtime`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*simplemedia.FileRecord, error) {
	var f simplemedia.FileRecord
	var u sql.NullString
	var mtime int64
	if err := row.Scan(&f.Name, &f.ID, &f.Size, &f.Hash, &f.Extension, &f.Type, &u, &mtime); err != nil {
		return nil, err
	}
	f.URL = u.String
	f.ModTime = time.Unix(0, mtime).UTC()
	return &f, nil
}

func (r *Repository) CreateFile(ctx context.Context, file *simplemedia.FileRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		file.Name, file.ID, file.Size, file.Hash, file.Extension, file.Type,
		nullString(file.URL), file.ModTime.UnixNano())
	return handleSQLiteError(err)
}

func (r *Repository) GetFile(ctx context.Context, hash, extension string) (*simplemedia.FileRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE hash = ? AND extension = ? ORDER BY seq LIMIT 1`,
		hash, extension)
	f, err := scanFile(row)
	if err != nil {
		return nil, handleSQLiteError(err)
	}
	return f, nil
}

func (r *Repository) GetFileByURL(ctx context.Context, url string) (*simplemedia.FileRecord, error) {
	if url == "" {
		return nil, simplemedia.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE url = ?`, url)
	f, err := scanFile(row)
	if err != nil {
		return nil, handleSQLiteError(err)
	}
	return f, nil
}

func (r *Repository) ListFiles(ctx context.Context, params simplemedia.ListFilesParams) ([]*simplemedia.FileRecord, error) {
	order := "DESC"
	if params.Ascending {
		order = "ASC"
	}
	limit := -1
	if params.Limit > 0 {
		limit = params.Limit
	}
	offset := 0
	if params.Offset > 0 {
		offset = params.Offset
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files ORDER BY mtime `+order+`, seq ASC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []*simplemedia.FileRecord{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *Repository) CountFiles(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n)
	return n, err
}

func (r *Repository) DeleteFiles(ctx context.Context, hash, extension string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE hash = ? AND extension = ?`, hash, extension)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Id mapping operations

func (r *Repository) CreateIDMapping(ctx context.Context, mapping *simplemedia.IDMapping) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ids (id, hash, extension) VALUES (?, ?, ?)`,
		mapping.ID, mapping.Hash, mapping.Extension)
	return handleSQLiteError(err)
}

func (r *Repository) getIDMapping(ctx context.Context, column, value string) (*simplemedia.IDMapping, error) {
	var m simplemedia.IDMapping
	err := r.db.QueryRowContext(ctx,
		`SELECT id, hash, extension FROM ids WHERE `+column+` = ?`, value).
		Scan(&m.ID, &m.Hash, &m.Extension)
	if err != nil {
		return nil, handleSQLiteError(err)
	}
	return &m, nil
}

func (r *Repository) GetIDMapping(ctx context.Context, id string) (*simplemedia.IDMapping, error) {
	return r.getIDMapping(ctx, "id", id)
}

func (r *Repository) GetIDMappingByHash(ctx context.Context, hash string) (*simplemedia.IDMapping, error) {
	return r.getIDMapping(ctx, "hash", hash)
}

func (r *Repository) DeleteIDMapping(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM ids WHERE hash = ?`, hash)
	return err
}

// Derived artifact operations

func (r *Repository) CreateDerivedArtifact(ctx context.Context, artifact *simplemedia.DerivedArtifact) error {
	createdAt := artifact.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO derived_artifacts (derived_path, source_path, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (derived_path) DO NOTHING`,
		artifact.DerivedPath, artifact.SourcePath, createdAt.UnixNano())
	return handleSQLiteError(err)
}

func (r *Repository) ListDerivedArtifacts(ctx context.Context, sourcePath string) ([]*simplemedia.DerivedArtifact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT derived_path, source_path, created_at FROM derived_artifacts
		 WHERE source_path = ? ORDER BY derived_path`, sourcePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*simplemedia.DerivedArtifact
	for rows.Next() {
		var a simplemedia.DerivedArtifact
		var createdAt int64
		if err := rows.Scan(&a.DerivedPath, &a.SourcePath, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = time.Unix(0, createdAt).UTC()
		artifacts = append(artifacts, &a)
	}
	return artifacts, rows.Err()
}

func (r *Repository) DeleteDerivedArtifacts(ctx context.Context, sourcePath string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM derived_artifacts WHERE source_path = ?`, sourcePath)
	return err
}
