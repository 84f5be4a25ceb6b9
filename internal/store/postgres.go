// Package store implements core.Store on PostgreSQL through database/sql
// and the pgx stdlib driver. Compound writes (registration, token rotation)
// run inside a single transaction so concurrent authentication checks never
// observe a half-rotated state.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"filedrop/internal/core"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

var _ core.Store = (*Postgres)(nil)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// withTx runs fn in a transaction, committing on success and rolling back
// on error or panic.
func (p *Postgres) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

func (p *Postgres) FindTokenByGuid(ctx context.Context, guid uuid.UUID) (*core.Token, error) {
	return scanToken(p.db.QueryRowContext(ctx,
		`SELECT guid, user_guid, token_type, revoked, created_at
		 FROM tokens WHERE guid = $1`, guid))
}

func (p *Postgres) FindTokenByUser(ctx context.Context, userGuid uuid.UUID) (*core.Token, error) {
	// Live token first; a rotated-away user only ever has one row anyway.
	return scanToken(p.db.QueryRowContext(ctx,
		`SELECT guid, user_guid, token_type, revoked, created_at
		 FROM tokens WHERE user_guid = $1
		 ORDER BY revoked ASC LIMIT 1`, userGuid))
}

func scanToken(row *sql.Row) (*core.Token, error) {
	var t core.Token
	err := row.Scan(&t.Guid, &t.UserGuid, &t.Type, &t.Revoked, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}
	return &t, nil
}

func (p *Postgres) FindUserByGuid(ctx context.Context, guid uuid.UUID) (*core.User, error) {
	return scanUser(p.db.QueryRowContext(ctx,
		`SELECT guid, email, created_at, disabled FROM users WHERE guid = $1`, guid))
}

func (p *Postgres) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	if email == "" {
		return nil, core.ErrNotFound
	}
	return scanUser(p.db.QueryRowContext(ctx,
		`SELECT guid, email, created_at, disabled FROM users WHERE email = $1`, email))
}

func scanUser(row *sql.Row) (*core.User, error) {
	var u core.User
	err := row.Scan(&u.Guid, &u.Email, &u.CreatedAt, &u.Disabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

const uploadColumns = `guid, filename, owner_claim, password_hash, content_type, size_bytes, created_at`

func (p *Postgres) FindUploadByIdentifier(ctx context.Context, identifier string) (*core.Upload, error) {
	// Guid-form lookup takes precedence over a filename that happens to
	// look like a guid.
	if guid, err := uuid.Parse(identifier); err == nil {
		up, err := scanUpload(p.db.QueryRowContext(ctx,
			`SELECT `+uploadColumns+` FROM uploads WHERE guid = $1`, guid))
		if err == nil {
			return up, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return nil, err
		}
	}
	return scanUpload(p.db.QueryRowContext(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE filename = $1`, identifier))
}

func scanUpload(row *sql.Row) (*core.Upload, error) {
	var up core.Upload
	err := row.Scan(&up.Guid, &up.Filename, &up.OwnerClaim, &up.PasswordHash,
		&up.ContentType, &up.SizeBytes, &up.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("scan upload: %w", err)
	}
	return &up, nil
}

func (p *Postgres) ListUploadsByOwner(ctx context.Context, ownerClaim string) ([]core.Upload, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+uploadColumns+` FROM uploads
		 WHERE owner_claim = $1 ORDER BY created_at DESC`, ownerClaim)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []core.Upload
	for rows.Next() {
		var up core.Upload
		if err := rows.Scan(&up.Guid, &up.Filename, &up.OwnerClaim, &up.PasswordHash,
			&up.ContentType, &up.SizeBytes, &up.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		uploads = append(uploads, up)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return uploads, nil
}

func (p *Postgres) CreateUserWithToken(ctx context.Context, user *core.User, token *core.Token) error {
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (guid, email, created_at, disabled)
			 VALUES ($1, $2, $3, $4)`,
			user.Guid, user.Email, user.CreatedAt, user.Disabled); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tokens (guid, user_guid, token_type, revoked, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			token.Guid, token.UserGuid, token.Type, token.Revoked, token.CreatedAt)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (p *Postgres) InsertToken(ctx context.Context, token *core.Token) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO tokens (guid, user_guid, token_type, revoked, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.Guid, token.UserGuid, token.Type, token.Revoked, token.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (p *Postgres) RotateToken(ctx context.Context, userGuid uuid.UUID, fresh *core.Token) error {
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM tokens WHERE user_guid = $1`, userGuid); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tokens (guid, user_guid, token_type, revoked, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			fresh.Guid, fresh.UserGuid, fresh.Type, fresh.Revoked, fresh.CreatedAt)
		return err
	})
	if err != nil {
		// The tokens_one_live_per_user index turns a lost rotation race
		// into a unique violation instead of a silent second live token.
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return fmt.Errorf("rotate token: %w", err)
	}
	return nil
}

func (p *Postgres) RevokeToken(ctx context.Context, userGuid uuid.UUID) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE tokens SET revoked = TRUE WHERE user_guid = $1`, userGuid)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (p *Postgres) SetUserDisabled(ctx context.Context, userGuid uuid.UUID, disabled bool) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE users SET disabled = $2 WHERE guid = $1`, userGuid, disabled)
	if err != nil {
		return fmt.Errorf("set disabled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteUser(ctx context.Context, userGuid uuid.UUID) error {
	// Tokens cascade with the row; uploads keep their owner claim and
	// become orphaned.
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM users WHERE guid = $1`, userGuid)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (p *Postgres) InsertUpload(ctx context.Context, upload *core.Upload) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO uploads (guid, filename, owner_claim, password_hash, content_type, size_bytes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		upload.Guid, upload.Filename, upload.OwnerClaim, upload.PasswordHash,
		upload.ContentType, upload.SizeBytes, upload.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteUpload(ctx context.Context, guid uuid.UUID) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM uploads WHERE guid = $1`, guid)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}
