package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/dropserve/internal/common"
	"github.com/dmitrijs2005/dropserve/internal/dbx"
	"github.com/dmitrijs2005/dropserve/internal/server/models"
)

// pgUniqueViolation is the Postgres error code for unique_violation.
const pgUniqueViolation = "23505"

// PostgresRepository implements the file metadata store over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new file record. A unique violation on either token column
// maps to common.ErrDuplicateToken so the caller can retry with fresh tokens.
func (r *PostgresRepository) Create(ctx context.Context, rec *models.FileRecord) error {
	query := `
		INSERT INTO files (token, extension, original_filename, mime_type, deletion_token, access_type, access_secret)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	accessType, secret := models.EncodeAccess(rec.Access)
	_, err := r.db.ExecContext(ctx, query,
		rec.Token, rec.Extension, rec.OriginalFilename, rec.MimeType, rec.DeletionToken, accessType, secret)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return common.ErrDuplicateToken
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectColumns = `token, extension, original_filename, mime_type, deletion_token, access_type, access_secret, created_at`

func (r *PostgresRepository) getByColumn(ctx context.Context, column, value string) (*models.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE %s = $1`, selectColumns, column)

	rec := &models.FileRecord{}
	var accessType models.AccessType
	var secret sql.NullString
	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&rec.Token, &rec.Extension, &rec.OriginalFilename, &rec.MimeType,
		&rec.DeletionToken, &accessType, &secret, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	var secretPtr *string
	if secret.Valid {
		secretPtr = &secret.String
	}
	rec.Access = models.DecodeAccess(accessType, secretPtr)
	return rec, nil
}

// GetByToken returns the record for an access token.
func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.FileRecord, error) {
	return r.getByColumn(ctx, "token", token)
}

// GetByDeletionToken returns the record for a deletion token.
func (r *PostgresRepository) GetByDeletionToken(ctx context.Context, token string) (*models.FileRecord, error) {
	return r.getByColumn(ctx, "deletion_token", token)
}

// SetAccessSecret performs the one-time password assignment as a single
// atomic check-and-set. Two concurrent calls race safely: exactly one update
// matches, the other sees zero rows and gets common.ErrAlreadySet.
func (r *PostgresRepository) SetAccessSecret(ctx context.Context, token string, secret string) error {
	query := `
		UPDATE files SET access_secret = $2
		WHERE token = $1 AND access_type = $3 AND access_secret IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, token, secret, models.AccessPasswordProtected)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Zero rows: either the record is gone or the secret is already set
	// (a normal record counts as "already decided" too).
	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM files WHERE token = $1`, token).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return common.ErrAlreadySet
}

// Delete removes the record for an access token. Exactly one row must be
// affected; zero rows maps to common.ErrNotFound.
func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
