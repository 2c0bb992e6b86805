package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simplemedia.Repository using PostgreSQL
type Repository struct {
	db   DBTX
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL repository on an existing connection. Close
// does not close db.
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository that owns pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// Open applies the schema migrations and connects a pool to dsn.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	if err := Migrate(dsn); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return NewWithPool(pool), nil
}

func (r *Repository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return simplemedia.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", simplemedia.ErrDuplicate, pgErr.ConstraintName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// File operations

const fileColumns = `name, id, size, hash, extension, type, url, mtime`

func scanFile(row pgx.Row) (*simplemedia.FileRecord, error) {
	var f simplemedia.FileRecord
	var url *string
	if err := row.Scan(&f.Name, &f.ID, &f.Size, &f.Hash, &f.Extension, &f.Type, &url, &f.ModTime); err != nil {
		return nil, err
	}
	if url != nil {
		f.URL = *url
	}
	return &f, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *Repository) CreateFile(ctx context.Context, file *simplemedia.FileRecord) error {
	query := `
		INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		file.Name, file.ID, file.Size, file.Hash, file.Extension, file.Type,
		nullable(file.URL), file.ModTime)
	if err != nil {
		return r.handlePostgresError("create file", err)
	}
	return nil
}

func (r *Repository) GetFile(ctx context.Context, hash, extension string) (*simplemedia.FileRecord, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files WHERE hash = $1 AND extension = $2
		ORDER BY seq LIMIT 1`

	f, err := scanFile(r.db.QueryRow(ctx, query, hash, extension))
	if err != nil {
		return nil, r.handlePostgresError("get file", err)
	}
	return f, nil
}

func (r *Repository) GetFileByURL(ctx context.Context, url string) (*simplemedia.FileRecord, error) {
	if url == "" {
		return nil, simplemedia.ErrNotFound
	}
	query := `SELECT ` + fileColumns + ` FROM files WHERE url = $1`

	f, err := scanFile(r.db.QueryRow(ctx, query, url))
	if err != nil {
		return nil, r.handlePostgresError("get file by url", err)
	}
	return f, nil
}

func (r *Repository) ListFiles(ctx context.Context, params simplemedia.ListFilesParams) ([]*simplemedia.FileRecord, error) {
	order := "DESC"
	if params.Ascending {
		order = "ASC"
	}
	var limit *int
	if params.Limit > 0 {
		limit = &params.Limit
	}
	offset := 0
	if params.Offset > 0 {
		offset = params.Offset
	}

	query := `
		SELECT ` + fileColumns + `
		FROM files ORDER BY mtime ` + order + `, seq ASC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, r.handlePostgresError("list files", err)
	}
	defer rows.Close()

	files := []*simplemedia.FileRecord{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan file", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list files", err)
	}
	return files, nil
}

func (r *Repository) CountFiles(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, r.handlePostgresError("count files", err)
	}
	return n, nil
}

func (r *Repository) DeleteFiles(ctx context.Context, hash, extension string) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE hash = $1 AND extension = $2`, hash, extension)
	if err != nil {
		return 0, r.handlePostgresError("delete files", err)
	}
	return int(tag.RowsAffected()), nil
}

// Id mapping operations

func (r *Repository) CreateIDMapping(ctx context.Context, mapping *simplemedia.IDMapping) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ids (id, hash, extension) VALUES ($1, $2, $3)`,
		mapping.ID, mapping.Hash, mapping.Extension)
	if err != nil {
		return r.handlePostgresError("create id mapping", err)
	}
	return nil
}

func (r *Repository) GetIDMapping(ctx context.Context, id string) (*simplemedia.IDMapping, error) {
	var m simplemedia.IDMapping
	err := r.db.QueryRow(ctx, `SELECT id, hash, extension FROM ids WHERE id = $1`, id).
		Scan(&m.ID, &m.Hash, &m.Extension)
	if err != nil {
		return nil, r.handlePostgresError("get id mapping", err)
	}
	return &m, nil
}

func (r *Repository) GetIDMappingByHash(ctx context.Context, hash string) (*simplemedia.IDMapping, error) {
	var m simplemedia.IDMapping
	err := r.db.QueryRow(ctx, `SELECT id, hash, extension FROM ids WHERE hash = $1`, hash).
		Scan(&m.ID, &m.Hash, &m.Extension)
	if err != nil {
		return nil, r.handlePostgresError("get id mapping by hash", err)
	}
	return &m, nil
}

func (r *Repository) DeleteIDMapping(ctx context.Context, hash string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM ids WHERE hash = $1`, hash); err != nil {
		return r.handlePostgresError("delete id mapping", err)
	}
	return nil
}

// Derived artifact operations

func (r *Repository) CreateDerivedArtifact(ctx context.Context, artifact *simplemedia.DerivedArtifact) error {
	createdAt := artifact.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO derived_artifacts (derived_path, source_path, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (derived_path) DO NOTHING`,
		artifact.DerivedPath, artifact.SourcePath, createdAt)
	if err != nil {
		return r.handlePostgresError("create derived artifact", err)
	}
	return nil
}

func (r *Repository) ListDerivedArtifacts(ctx context.Context, sourcePath string) ([]*simplemedia.DerivedArtifact, error) {
	rows, err := r.db.Query(ctx, `
		SELECT derived_path, source_path, created_at
		FROM derived_artifacts WHERE source_path = $1
		ORDER BY derived_path`, sourcePath)
	if err != nil {
		return nil, r.handlePostgresError("list derived artifacts", err)
	}
	defer rows.Close()

	var artifacts []*simplemedia.DerivedArtifact
	for rows.Next() {
		var a simplemedia.DerivedArtifact
		if err := rows.Scan(&a.DerivedPath, &a.SourcePath, &a.CreatedAt); err != nil {
			return nil, r.handlePostgresError("scan derived artifact", err)
		}
		artifacts = append(artifacts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list derived artifacts", err)
	}
	return artifacts, nil
}

func (r *Repository) DeleteDerivedArtifacts(ctx context.Context, sourcePath string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM derived_artifacts WHERE source_path = $1`, sourcePath); err != nil {
		return r.handlePostgresError("delete derived artifacts", err)
	}
	return nil
}
