// Package services contains server-side business logic: the upload
// coordinator, the access-control state machine, and the deletion
// coordinator. Services own the consistency between the metadata store and
// the blob store; transports stay thin.
package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dmitrijs2005/dropserve/internal/common"
	"github.com/dmitrijs2005/dropserve/internal/dbx"
	"github.com/dmitrijs2005/dropserve/internal/logging"
	"github.com/dmitrijs2005/dropserve/internal/server/models"
	"github.com/dmitrijs2005/dropserve/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/dropserve/internal/server/storage"
)

// maxTokenAttempts bounds the collision-retry loop. With 62^10 token values a
// second attempt is already vanishingly rare; running out means something is
// wrong with the database, not with luck.
const maxTokenAttempts = 5

// UploadRequest carries one authenticated upload.
type UploadRequest struct {
	// Filename is the client's original file name, used only to derive the
	// extension and for display.
	Filename string
	// MimeType is the client-declared content type; sniffed from Data when empty.
	MimeType string
	// Protected requests the password-protected access policy.
	Protected bool
	// Data is the raw file content. Nil means no file part was supplied.
	Data []byte
}

// UploadResult is the public outcome of an upload: the file name to fetch it
// by and the secret that authorizes deletion.
type UploadResult struct {
	File     string `json:"file"`
	Deletion string `json:"deletion"`
}

// UploadService coordinates an upload across the metadata store and the blob
// store: allocate tokens, commit metadata, then commit bytes, compensating
// when the second step fails.
type UploadService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       storage.BlobStore
	logger      logging.Logger
}

func NewUploadService(db *sql.DB, rm repomanager.RepositoryManager, blobs storage.BlobStore, logger logging.Logger) *UploadService {
	return &UploadService{
		db:          db,
		repomanager: rm,
		blobs:       blobs,
		logger:      logger.With("module", "upload"),
	}
}

// deriveExtension returns the filename's suffix after the first dot, or ""
// when there is none. "archive.tar.gz" keeps the compound "tar.gz".
func deriveExtension(filename string) string {
	_, ext, found := strings.Cut(filename, ".")
	if !found {
		return ""
	}
	return ext
}

// detectMimeType prefers the client-declared type and falls back to sniffing
// the content's magic bytes.
func detectMimeType(declared string, data []byte) string {
	if declared != "" {
		return declared
	}
	return mimetype.Detect(data).String()
}

// Upload runs the upload sequence. The metadata insert happens inside its own
// transaction; a token collision on either token retries the whole allocation
// with a fresh pair. If the blob write fails after the insert committed, the
// record is deleted again so that no metadata row exists without its blob.
func (s *UploadService) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if req.Data == nil {
		return nil, common.ErrNoFile
	}

	rec := &models.FileRecord{
		Extension:        deriveExtension(req.Filename),
		OriginalFilename: req.Filename,
		MimeType:         detectMimeType(req.MimeType, req.Data),
	}
	if req.Protected {
		rec.Access = models.ProtectedAccess{}
	} else {
		rec.Access = models.NormalAccess{}
	}

	inserted := false
	for attempt := 0; attempt < maxTokenAttempts && !inserted; attempt++ {
		token, err := common.MakeRandString(common.TokenLength)
		if err != nil {
			s.logger.Error(ctx, "token generation failed", "error", err)
			return nil, common.ErrStorage
		}
		deletionToken, err := common.MakeRandString(common.TokenLength)
		if err != nil {
			s.logger.Error(ctx, "token generation failed", "error", err)
			return nil, common.ErrStorage
		}
		rec.Token = token
		rec.DeletionToken = deletionToken

		err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return s.repomanager.Files(tx).Create(ctx, rec)
		})
		switch {
		case err == nil:
			inserted = true
		case errors.Is(err, common.ErrDuplicateToken):
			s.logger.Warn(ctx, "token collision, retrying", "attempt", attempt+1)
		default:
			s.logger.Error(ctx, "metadata insert failed", "error", err)
			return nil, common.ErrStorage
		}
	}
	if !inserted {
		s.logger.Error(ctx, "token allocation exhausted", "attempts", maxTokenAttempts)
		return nil, common.ErrStorage
	}

	key := rec.StorageKey()
	if err := s.blobs.Put(ctx, key, rec.MimeType, bytes.NewReader(req.Data), int64(len(req.Data))); err != nil {
		s.logger.Error(ctx, "blob write failed, compensating", "key", key, "error", err)
		s.compensate(ctx, rec.Token)
		return nil, common.ErrStorage
	}

	s.logger.Info(ctx, "file uploaded", "key", key, "size", len(req.Data), "protected", req.Protected)
	return &UploadResult{File: key, Deletion: rec.DeletionToken}, nil
}

// compensate removes the metadata record inserted before a failed blob write.
// A failure here leaves an orphaned record and is an operator concern, so it
// is logged loudly.
func (s *UploadService) compensate(ctx context.Context, token string) {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Files(tx).Delete(ctx, token)
	})
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		s.logger.Error(ctx, "compensation failed, orphaned metadata record",
			"token", token, "error", errors.Join(common.ErrInconsistent, err))
	}
}
