package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"io"
	"strings"

	"github.com/dmitrijs2005/dropserve/internal/common"
	"github.com/dmitrijs2005/dropserve/internal/logging"
	"github.com/dmitrijs2005/dropserve/internal/server/models"
	"github.com/dmitrijs2005/dropserve/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/dropserve/internal/server/storage"
)

// Decision is the outcome of evaluating a retrieval request.
type Decision int

const (
	// DecisionServe allows streaming the blob to the caller.
	DecisionServe Decision = iota
	// DecisionPromptCreate asks the caller to set the first password.
	DecisionPromptCreate
	// DecisionPromptEnter asks the caller for the existing password.
	DecisionPromptEnter
)

// AccessResult carries the decision plus what the transport needs to act on
// it: the token for form targets, and the content stream and MIME type when
// the decision is to serve.
type AccessResult struct {
	Decision Decision
	Token    string
	MimeType string
	Content  io.ReadCloser
}

// AccessService is the state machine deciding, per request, whether a file is
// served, prompts for password creation, or prompts for password entry.
type AccessService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       storage.BlobStore
	logger      logging.Logger
}

func NewAccessService(db *sql.DB, rm repomanager.RepositoryManager, blobs storage.BlobStore, logger logging.Logger) *AccessService {
	return &AccessService{
		db:          db,
		repomanager: rm,
		blobs:       blobs,
		logger:      logger.With("module", "access"),
	}
}

// tokenFromRequest strips the cosmetic extension from a request path segment.
// Lookup is always by token; a stated extension, matching or not, is ignored.
func tokenFromRequest(request string) string {
	token, _, _ := strings.Cut(request, ".")
	return token
}

// Evaluate resolves a retrieval request against the record's current state.
// password is the submitted password, empty when none was sent. The returned
// errors map to the transport taxonomy: common.ErrNotFound for an unknown
// token, common.ErrInconsistent when the record exists but its blob is gone,
// common.ErrStorage for I/O failures.
func (s *AccessService) Evaluate(ctx context.Context, request string, password string) (*AccessResult, error) {
	token := tokenFromRequest(request)

	rec, err := s.repomanager.Files(s.db).GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		s.logger.Error(ctx, "metadata lookup failed", "token", token, "error", err)
		return nil, common.ErrStorage
	}

	switch access := rec.Access.(type) {
	case models.ProtectedAccess:
		if !access.Set {
			return &AccessResult{Decision: DecisionPromptCreate, Token: rec.Token}, nil
		}
		if subtle.ConstantTimeCompare([]byte(password), []byte(access.Secret)) != 1 {
			return &AccessResult{Decision: DecisionPromptEnter, Token: rec.Token}, nil
		}
	}

	return s.serve(ctx, rec)
}

// serve opens the blob stream for a record that passed access control.
func (s *AccessService) serve(ctx context.Context, rec *models.FileRecord) (*AccessResult, error) {
	content, err := s.blobs.Get(ctx, rec.StorageKey())
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// The record exists but the bytes are gone: a prior
			// reconciliation failure, not a user-visible not-found.
			s.logger.Error(ctx, "blob missing for live record", "key", rec.StorageKey())
			return nil, common.ErrInconsistent
		}
		s.logger.Error(ctx, "blob read failed", "key", rec.StorageKey(), "error", err)
		return nil, common.ErrStorage
	}
	return &AccessResult{
		Decision: DecisionServe,
		Token:    rec.Token,
		MimeType: rec.MimeType,
		Content:  content,
	}, nil
}

// SetPassword performs the one-time password assignment for a protected
// record that has no secret yet. Any other state is invalid:
// common.ErrBadRequest for unknown tokens, normal records, and empty
// passwords; common.ErrAlreadySet when the secret was assigned before the
// update applied, including a lost race with a concurrent caller. The
// caller's next retrieval is evaluated against the winner's secret.
func (s *AccessService) SetPassword(ctx context.Context, token string, password string) error {
	if password == "" {
		return common.ErrBadRequest
	}

	repo := s.repomanager.Files(s.db)

	rec, err := repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrBadRequest
		}
		s.logger.Error(ctx, "metadata lookup failed", "token", token, "error", err)
		return common.ErrStorage
	}
	if rec.Access.Type() != models.AccessPasswordProtected {
		return common.ErrBadRequest
	}

	err = repo.SetAccessSecret(ctx, token, password)
	switch {
	case err == nil:
		s.logger.Info(ctx, "access password set", "token", token)
		return nil
	case errors.Is(err, common.ErrAlreadySet):
		return common.ErrAlreadySet
	case errors.Is(err, common.ErrNotFound):
		return common.ErrBadRequest
	default:
		s.logger.Error(ctx, "password set failed", "token", token, "error", err)
		return common.ErrStorage
	}
}
