package services

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dmitrijs2005/dropserve/internal/common"
	"github.com/dmitrijs2005/dropserve/internal/dbx"
	"github.com/dmitrijs2005/dropserve/internal/logging"
	"github.com/dmitrijs2005/dropserve/internal/server/models"
	"github.com/dmitrijs2005/dropserve/internal/server/repositories/files"
)

// --- test doubles ---

// fakeFilesRepo is an in-memory files.Repository with failure knobs. Writes
// are serialized by a mutex so concurrency tests exercise the same
// atomic-check-and-set contract the Postgres implementation provides.
type fakeFilesRepo struct {
	mu         sync.Mutex
	records    map[string]models.FileRecord // keyed by access token
	byDeletion map[string]string            // deletion token -> access token

	failCreates int // return ErrDuplicateToken for this many Create calls
	createCalls int
	getErr      error
	deleteErr   error
}

func newFakeFilesRepo() *fakeFilesRepo {
	return &fakeFilesRepo{
		records:    make(map[string]models.FileRecord),
		byDeletion: make(map[string]string),
	}
}

func (f *fakeFilesRepo) Create(ctx context.Context, rec *models.FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCalls++
	if f.failCreates > 0 {
		f.failCreates--
		return common.ErrDuplicateToken
	}
	if _, ok := f.records[rec.Token]; ok {
		return common.ErrDuplicateToken
	}
	if _, ok := f.byDeletion[rec.DeletionToken]; ok {
		return common.ErrDuplicateToken
	}
	f.records[rec.Token] = *rec
	f.byDeletion[rec.DeletionToken] = rec.Token
	return nil
}

func (f *fakeFilesRepo) GetByToken(ctx context.Context, token string) (*models.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.records[token]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &rec, nil
}

func (f *fakeFilesRepo) GetByDeletionToken(ctx context.Context, token string) (*models.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	accessToken, ok := f.byDeletion[token]
	if !ok {
		return nil, common.ErrNotFound
	}
	rec := f.records[accessToken]
	return &rec, nil
}

func (f *fakeFilesRepo) SetAccessSecret(ctx context.Context, token string, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[token]
	if !ok {
		return common.ErrNotFound
	}
	access, isProtected := rec.Access.(models.ProtectedAccess)
	if !isProtected || access.Set {
		return common.ErrAlreadySet
	}
	rec.Access = models.ProtectedAccess{Secret: secret, Set: true}
	f.records[token] = rec
	return nil
}

func (f *fakeFilesRepo) Delete(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return f.deleteErr
	}
	rec, ok := f.records[token]
	if !ok {
		return common.ErrNotFound
	}
	delete(f.records, token)
	delete(f.byDeletion, rec.DeletionToken)
	return nil
}

var _ files.Repository = (*fakeFilesRepo)(nil)

// fakeRepoManager hands out the same fake repository for any DBTX.
type fakeRepoManager struct {
	repo *fakeFilesRepo
}

func (f *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

func (f *fakeRepoManager) Files(db dbx.DBTX) files.Repository { return f.repo }

// memBlobStore is an in-memory storage.BlobStore with failure knobs.
type memBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	putErr error
	getErr error
	delErr error
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: make(map[string][]byte)}
}

func (m *memBlobStore) Put(ctx context.Context, key string, contentType string, r io.Reader, size int64) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBlobStore) Delete(ctx context.Context, key string) error {
	if m.delErr != nil {
		return m.delErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memBlobStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// --- shared helpers ---

type testEnv struct {
	db    *sql.DB
	mock  sqlmock.Sqlmock
	repo  *fakeFilesRepo
	rm    *fakeRepoManager
	blobs *memBlobStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := newFakeFilesRepo()
	return &testEnv{
		db:    db,
		mock:  mock,
		repo:  repo,
		rm:    &fakeRepoManager{repo: repo},
		blobs: newMemBlobStore(),
	}
}

func testLogger() logging.Logger {
	return logging.NewJSONLogger(io.Discard)
}

// expectTxCommit queues one successful metadata transaction.
func (e *testEnv) expectTxCommit() {
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
}

// expectTxRollback queues one transaction that the service rolls back.
func (e *testEnv) expectTxRollback() {
	e.mock.ExpectBegin()
	e.mock.ExpectRollback()
}
