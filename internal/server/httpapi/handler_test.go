package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/dropserve/internal/common"
	"github.com/dmitrijs2005/dropserve/internal/logging"
	"github.com/dmitrijs2005/dropserve/internal/server/auth"
	"github.com/dmitrijs2005/dropserve/internal/server/services"
)

// ---- test logger ----

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

// ---- fakes ----

type fakeUploads struct {
	gotReq *services.UploadRequest
	resp   *services.UploadResult
	err    error
}

func (f *fakeUploads) Upload(ctx context.Context, req *services.UploadRequest) (*services.UploadResult, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &services.UploadResult{File: "Ab3kD9xLq2.png", Deletion: "Zy8mP1qRt4"}, nil
}

type fakeAccess struct {
	evalResp   *services.AccessResult
	evalErr    error
	gotRequest string
	gotPw      string

	setErr   error
	setToken string
	setPw    string
}

func (f *fakeAccess) Evaluate(ctx context.Context, request string, password string) (*services.AccessResult, error) {
	f.gotRequest = request
	f.gotPw = password
	return f.evalResp, f.evalErr
}

func (f *fakeAccess) SetPassword(ctx context.Context, token string, password string) error {
	f.setToken = token
	f.setPw = password
	return f.setErr
}

type fakeDeletions struct {
	gotToken string
	err      error
}

func (f *fakeDeletions) Delete(ctx context.Context, deletionToken string) error {
	f.gotToken = deletionToken
	return f.err
}

type fakePinger struct {
	err error
}

func (f *fakePinger) PingContext(ctx context.Context) error { return f.err }

// ---- helpers ----

const testSecret = "test-secret"

type env struct {
	uploads   *fakeUploads
	access    *fakeAccess
	deletions *fakeDeletions
	pinger    *fakePinger
	server    *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		uploads:   &fakeUploads{},
		access:    &fakeAccess{},
		deletions: &fakeDeletions{},
		pinger:    &fakePinger{},
	}
	h := NewHandler(e.uploads, e.access, e.deletions, e.pinger, testSecret, nopLogger{})
	e.server = httptest.NewServer(h.Routes())
	t.Cleanup(e.server.Close)
	return e
}

func mintToken(t *testing.T) string {
	t.Helper()
	tok, err := auth.MintUploadToken("test", []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}
	return tok
}

// multipartUpload builds a multipart body with an optional file part and
// extra form fields.
func multipartUpload(t *testing.T, filename string, content []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("upload", filename)
		if err != nil {
			t.Fatalf("creating file part: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("writing file part: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("writing field %q: %v", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func doRequest(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	// Redirects must surface as-is, the 303 after set-password is contract.
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return resp, string(body)
}

// ---- tests ----

func TestRoot_NotFound(t *testing.T) {
	e := newEnv(t)

	resp, body := doRequest(t, mustRequest(t, http.MethodGet, e.server.URL+"/", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body != "File not found." {
		t.Fatalf("body = %q", body)
	}
}

func mustRequest(t *testing.T, method, url string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	return req
}

func TestUpload_BearerHeaderAuth(t *testing.T) {
	e := newEnv(t)

	body, contentType := multipartUpload(t, "cat.png", []byte("pngbytes"), nil)
	req := mustRequest(t, http.MethodPost, e.server.URL+"/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+mintToken(t))

	resp, respBody := doRequest(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %q", resp.StatusCode, respBody)
	}

	var out struct {
		File     string `json:"file"`
		Deletion string `json:"deletion"`
	}
	if err := json.Unmarshal([]byte(respBody), &out); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if out.File == "" || out.Deletion == "" {
		t.Fatalf("incomplete response: %+v", out)
	}

	if e.uploads.gotReq.Filename != "cat.png" {
		t.Fatalf("filename = %q", e.uploads.gotReq.Filename)
	}
	if !bytes.Equal(e.uploads.gotReq.Data, []byte("pngbytes")) {
		t.Fatalf("data mismatch: %q", e.uploads.gotReq.Data)
	}
	if e.uploads.gotReq.Protected {
		t.Fatal("protected flag set without the form field")
	}
}

func TestUpload_AuthFormField(t *testing.T) {
	e := newEnv(t)

	body, contentType := multipartUpload(t, "cat.png", []byte("pngbytes"), map[string]string{
		"auth": mintToken(t),
	})
	req := mustRequest(t, http.MethodPost, e.server.URL+"/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp, respBody := doRequest(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %q", resp.StatusCode, respBody)
	}
}

func TestUpload_ProtectedField(t *testing.T) {
	e := newEnv(t)

	// Presence of the field requests protection even with an empty value.
	body, contentType := multipartUpload(t, "cat.png", []byte("pngbytes"), map[string]string{
		"auth":      mintToken(t),
		"protected": "",
	})
	req := mustRequest(t, http.MethodPost, e.server.URL+"/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp, _ := doRequest(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !e.uploads.gotReq.Protected {
		t.Fatal("protected flag not propagated")
	}
}

func TestUpload_InvalidToken(t *testing.T) {
	e := newEnv(t)

	for _, header := range []string{"", "Bearer not.a.jwt"} {
		body, contentType := multipartUpload(t, "cat.png", []byte("x"), nil)
		req := mustRequest(t, http.MethodPost, e.server.URL+"/upload", body)
		req.Header.Set("Content-Type", contentType)
		if header != "" {
			req.Header.Set("Authorization", header)
		}

		resp, respBody := doRequest(t, req)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("header %q: status = %d, want 401", header, resp.StatusCode)
		}
		if respBody != "Invalid token." {
			t.Fatalf("body = %q", respBody)
		}
	}
	if e.uploads.gotReq != nil {
		t.Fatal("service reached despite failed auth")
	}
}

func TestUpload_NoFile(t *testing.T) {
	e := newEnv(t)
	e.uploads.err = common.ErrNoFile

	body, contentType := multipartUpload(t, "", nil, map[string]string{
		"auth": mintToken(t),
	})
	req := mustRequest(t, http.MethodPost, e.server.URL+"/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp, respBody := doRequest(t, req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if respBody != "No files were uploaded." {
		t.Fatalf("body = %q", respBody)
	}
	if e.uploads.gotReq.Data != nil {
		t.Fatalf("data should be nil without a file part, got %q", e.uploads.gotReq.Data)
	}
}

func TestUpload_StorageFailure(t *testing.T) {
	e := newEnv(t)
	e.uploads.err = common.ErrStorage

	body, contentType := multipartUpload(t, "cat.png", []byte("x"), map[string]string{
		"auth": mintToken(t),
	})
	req := mustRequest(t, http.MethodPost, e.server.URL+"/upload", body)
	req.Header.Set("Content-Type", contentType)

	resp, _ := doRequest(t, req)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestDelete_Success(t *testing.T) {
	e := newEnv(t)

	resp, body := doRequest(t, mustRequest(t, http.MethodGet, e.server.URL+"/delete/Zy8mP1qRt4", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body != "Deleted file." {
		t.Fatalf("body = %q", body)
	}
	if e.deletions.gotToken != "Zy8mP1qRt4" {
		t.Fatalf("token = %q", e.deletions.gotToken)
	}
}

func TestDelete_InvalidToken(t *testing.T) {
	e := newEnv(t)
	e.deletions.err = common.ErrNotFound

	resp, body := doRequest(t, mustRequest(t, http.MethodGet, e.server.URL+"/delete/badtoken12", nil))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if body != "Invalid deletion token." {
		t.Fatalf("body = %q", body)
	}
}

func TestSetPassword_RedirectsToFile(t *testing.T) {
	e := newEnv(t)

	form := strings.NewReader("password=hunter2")
	req := mustRequest(t, http.MethodPost, e.server.URL+"/set-password/Ab3kD9xLq2", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, _ := doRequest(t, req)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/Ab3kD9xLq2" {
		t.Fatalf("Location = %q", loc)
	}
	if e.access.setToken != "Ab3kD9xLq2" || e.access.setPw != "hunter2" {
		t.Fatalf("service got %q/%q", e.access.setToken, e.access.setPw)
	}
}

func TestSetPassword_InvalidStates(t *testing.T) {
	for _, svcErr := range []error{common.ErrBadRequest, common.ErrAlreadySet} {
		e := newEnv(t)
		e.access.setErr = svcErr

		form := strings.NewReader("password=hunter2")
		req := mustRequest(t, http.MethodPost, e.server.URL+"/set-password/Ab3kD9xLq2", form)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, body := doRequest(t, req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%v: status = %d, want 400", svcErr, resp.StatusCode)
		}
		if body != "Invalid token request." {
			t.Fatalf("body = %q", body)
		}
	}
}

func TestRetrieve_ServesFileBytes(t *testing.T) {
	e := newEnv(t)
	e.access.evalResp = &services.AccessResult{
		Decision: services.DecisionServe,
		Token:    "Ab3kD9xLq2",
		MimeType: "image/png",
		Content:  io.NopCloser(bytes.NewReader([]byte("pngbytes"))),
	}

	resp, body := doRequest(t, mustRequest(t, http.MethodGet, e.server.URL+"/Ab3kD9xLq2.png", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if body != "pngbytes" {
		t.Fatalf("body = %q", body)
	}
	if e.access.gotRequest != "Ab3kD9xLq2.png" {
		t.Fatalf("request passed as %q", e.access.gotRequest)
	}
}

func TestRetrieve_PasswordFormsAndPost(t *testing.T) {
	e := newEnv(t)
	e.access.evalResp = &services.AccessResult{
		Decision: services.DecisionPromptCreate,
		Token:    "Ab3kD9xLq2",
	}

	resp, body := doRequest(t, mustRequest(t, http.MethodGet, e.server.URL+"/Ab3kD9xLq2", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `action="/set-password/Ab3kD9xLq2"`) {
		t.Fatalf("create form must post to /set-password/{token}, got %q", body)
	}

	e.access.evalResp = &services.AccessResult{
		Decision: services.DecisionPromptEnter,
		Token:    "Ab3kD9xLq2",
	}

	// A wrong password POSTed to the file URL shows the entry form again.
	form := strings.NewReader("password=wrong")
	req := mustRequest(t, http.MethodPost, e.server.URL+"/Ab3kD9xLq2", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, body = doRequest(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, `action="/Ab3kD9xLq2"`) {
		t.Fatalf("entry form must post back to the file URL, got %q", body)
	}
	if !strings.Contains(body, `type="password"`) {
		t.Fatalf("entry form must use a password input, got %q", body)
	}
	if e.access.gotPw != "wrong" {
		t.Fatalf("password passed as %q", e.access.gotPw)
	}
}

func TestRetrieve_NotFoundAndInconsistent(t *testing.T) {
	e := newEnv(t)
	e.access.evalErr = common.ErrNotFound

	resp, body := doRequest(t, mustRequest(t, http.MethodGet, e.server.URL+"/ghost12345", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body != "File not found." {
		t.Fatalf("body = %q", body)
	}

	e.access.evalErr = common.ErrInconsistent
	resp, _ = doRequest(t, mustRequest(t, http.MethodGet, e.server.URL+"/Ab3kD9xLq2", nil))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	e := newEnv(t)

	resp, _ := doRequest(t, mustRequest(t, http.MethodGet, e.server.URL+"/health/live", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("live status = %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, mustRequest(t, http.MethodGet, e.server.URL+"/health/ready", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ready status = %d", resp.StatusCode)
	}

	e.pinger.err = context.DeadlineExceeded
	resp, _ = doRequest(t, mustRequest(t, http.MethodGet, e.server.URL+"/health/ready", nil))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("ready status = %d, want 503", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t)

	resp, body := doRequest(t, mustRequest(t, http.MethodGet, e.server.URL+"/metrics", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("metrics exposition missing runtime collectors")
	}
}
