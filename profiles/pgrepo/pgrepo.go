package pgrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	apperrors "github.com/jrsteele09/go-clinic-session/internal/errors"
	"github.com/jrsteele09/go-clinic-session/internal/utils"
	"github.com/jrsteele09/go-clinic-session/profiles"
)

// Migration creates the profiles table. It is safe to execute repeatedly.
const Migration = `
CREATE TABLE IF NOT EXISTS profiles (
    id          UUID PRIMARY KEY,
    user_id     TEXT NOT NULL UNIQUE,
    full_name   TEXT NOT NULL,
    role        TEXT NOT NULL CHECK (role IN ('admin', 'doctor', 'cashier')),
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    email       TEXT,
    phone       TEXT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_profiles_full_name ON profiles (full_name);
`

const profileCols = `id, user_id, full_name, role, active, email, phone, created_at, updated_at`

const uniqueViolation = "23505"

type pgRow interface {
	Scan(dest ...any) error
}

type pgRows interface {
	pgRow
	Next() bool
	Err() error
	Close()
}

// pgConn is the subset of *pgxpool.Pool the repo needs; tests substitute a mock.
type pgConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgRow
	Query(ctx context.Context, sql string, args ...any) (pgRows, error)
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

var _ profiles.Repo = (*ProfileRepo)(nil)

// ProfileRepo is a PostgreSQL backed profiles.Repo.
type ProfileRepo struct {
	db      pgConn
	nowTime func() time.Time
}

func newProfileRepo(db pgConn) *ProfileRepo {
	return &ProfileRepo{db: db, nowTime: time.Now}
}

// New creates a repo over a connection pool.
func New(pool *pgxpool.Pool) *ProfileRepo {
	return newProfileRepo(&pgxPoolWrapper{pool: pool})
}

// Connect opens a pool for databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, apperrors.Wrapf(err, "parse database url")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperrors.Wrapf(err, "open pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.Wrapf(err, "ping database")
	}
	return pool, nil
}

// Migrate applies the profiles DDL.
func (r *ProfileRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Migration); err != nil {
		return apperrors.Wrapf(err, "migrate profiles")
	}
	return nil
}

func (r *ProfileRepo) GetByUserID(ctx context.Context, userID string) (*profiles.Profile, error) {
	query := `SELECT ` + profileCols + ` FROM profiles WHERE user_id = $1`

	p, err := scanProfile(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if isNoRows(err) {
			return nil, profiles.ErrNotFound
		}
		return nil, apperrors.Wrapf(err, "get profile")
	}
	return p, nil
}

func (r *ProfileRepo) Insert(ctx context.Context, p *profiles.Profile) error {
	if !p.Role.IsValid() {
		return fmt.Errorf("insert profile: %w: %q", profiles.ErrUnknownRole, p.Role)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := r.nowTime()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	const query = `INSERT INTO profiles (` + profileCols + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if _, err := r.db.Exec(ctx, query,
		p.ID, p.UserID, p.FullName, string(p.Role), p.Active,
		utils.NilIfEmpty(p.Email), p.Phone, p.CreatedAt, p.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return profiles.ErrDuplicate
		}
		return apperrors.Wrapf(err, "insert profile")
	}
	return nil
}

func (r *ProfileRepo) Update(ctx context.Context, p *profiles.Profile) error {
	if !p.Role.IsValid() {
		return fmt.Errorf("update profile: %w: %q", profiles.ErrUnknownRole, p.Role)
	}
	p.UpdatedAt = r.nowTime()

	const query = `UPDATE profiles
SET full_name = $2, role = $3, active = $4, email = $5, phone = $6, updated_at = $7
WHERE user_id = $1`

	n, err := r.db.Exec(ctx, query,
		p.UserID, p.FullName, string(p.Role), p.Active, utils.NilIfEmpty(p.Email), p.Phone, p.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrapf(err, "update profile")
	}
	if n == 0 {
		return profiles.ErrNotFound
	}
	return nil
}

func (r *ProfileRepo) SetActive(ctx context.Context, userID string, active bool) error {
	const query = `UPDATE profiles SET active = $2, updated_at = $3 WHERE user_id = $1`

	n, err := r.db.Exec(ctx, query, userID, active, r.nowTime())
	if err != nil {
		return apperrors.Wrapf(err, "set profile active")
	}
	if n == 0 {
		return profiles.ErrNotFound
	}
	return nil
}

func (r *ProfileRepo) List(ctx context.Context, offset, limit int) (profiles.ListResponse, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM profiles`).Scan(&total); err != nil {
		return profiles.ListResponse{}, apperrors.Wrapf(err, "count profiles")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + profileCols + ` FROM profiles ORDER BY full_name, user_id LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return profiles.ListResponse{}, apperrors.Wrapf(err, "list profiles")
	}
	defer rows.Close()

	var items []*profiles.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return profiles.ListResponse{}, apperrors.Wrapf(err, "scan profile")
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return profiles.ListResponse{}, apperrors.Wrapf(err, "list profiles")
	}

	return profiles.ListResponse{Profiles: items, Total: total, Offset: offset, Limit: limit}, nil
}

// scanProfile reads one row; the role column is parsed into the closed Role set.
func scanProfile(row pgRow) (*profiles.Profile, error) {
	var (
		p     profiles.Profile
		role  string
		email *string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.FullName, &role, &p.Active, &email, &p.Phone, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	r, err := profiles.ParseRole(role)
	if err != nil {
		return nil, err
	}
	p.Role = r
	p.Email = utils.Value(email)
	return &p, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// pgxPoolWrapper adapts *pgxpool.Pool to pgConn.
type pgxPoolWrapper struct {
	pool *pgxpool.Pool
}

func (w *pgxPoolWrapper) QueryRow(ctx context.Context, sql string, args ...any) pgRow {
	return w.pool.QueryRow(ctx, sql, args...)
}

func (w *pgxPoolWrapper) Query(ctx context.Context, sql string, args ...any) (pgRows, error) {
	return w.pool.Query(ctx, sql, args...)
}

func (w *pgxPoolWrapper) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := w.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
