package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/dropserve/internal/common"
	"github.com/dmitrijs2005/dropserve/internal/dbx"
	"github.com/dmitrijs2005/dropserve/internal/logging"
	"github.com/dmitrijs2005/dropserve/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/dropserve/internal/server/storage"
)

// DeletionService removes a file on presentation of its deletion token:
// metadata first, then bytes.
type DeletionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       storage.BlobStore
	logger      logging.Logger
}

func NewDeletionService(db *sql.DB, rm repomanager.RepositoryManager, blobs storage.BlobStore, logger logging.Logger) *DeletionService {
	return &DeletionService{
		db:          db,
		repomanager: rm,
		blobs:       blobs,
		logger:      logger.With("module", "deletion"),
	}
}

// Delete resolves the deletion token and removes the record transactionally,
// then the blob. Metadata absence is the authoritative signal of deletion: a
// failed blob delete after the row is gone is logged for out-of-band cleanup
// and does not fail the call, since the token is unique and never reused no
// lookup can reach the residual bytes.
func (s *DeletionService) Delete(ctx context.Context, deletionToken string) error {
	rec, err := s.repomanager.Files(s.db).GetByDeletionToken(ctx, deletionToken)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		s.logger.Error(ctx, "metadata lookup failed", "error", err)
		return common.ErrStorage
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Files(tx).Delete(ctx, rec.Token)
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Lost a race with another deletion of the same record.
			return common.ErrNotFound
		}
		s.logger.Error(ctx, "metadata delete failed", "token", rec.Token, "error", err)
		return common.ErrStorage
	}

	if err := s.blobs.Delete(ctx, rec.StorageKey()); err != nil {
		s.logger.Warn(ctx, "blob delete failed, residual blob left for cleanup",
			"key", rec.StorageKey(), "error", err)
	}

	s.logger.Info(ctx, "file deleted", "token", rec.Token)
	return nil
}
