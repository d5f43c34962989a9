package files

import (
	"context"

	"github.com/dmitrijs2005/dropserve/internal/server/models"
)

// Repository is the metadata store for uploaded files. Every operation is
// atomic with respect to concurrent callers; multi-step sequences run on a
// transactional DBTX supplied by the caller.
type Repository interface {
	// Create inserts a new record. common.ErrDuplicateToken is returned when
	// either the token or the deletion token already exists.
	Create(ctx context.Context, rec *models.FileRecord) error

	// GetByToken returns the record for an access token, or common.ErrNotFound.
	GetByToken(ctx context.Context, token string) (*models.FileRecord, error)

	// GetByDeletionToken returns the record for a deletion token, or
	// common.ErrNotFound.
	GetByDeletionToken(ctx context.Context, token string) (*models.FileRecord, error)

	// SetAccessSecret assigns the write-once access secret. It fails with
	// common.ErrAlreadySet when a secret is already present (or the record is
	// not password protected) and common.ErrNotFound when the record is gone.
	SetAccessSecret(ctx context.Context, token string, secret string) error

	// Delete removes the record for an access token, or common.ErrNotFound.
	Delete(ctx context.Context, token string) error
}
