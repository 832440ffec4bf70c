package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/ers-reimbursement/internal/application/service"
	"github.com/garyjia/ers-reimbursement/internal/domain/entity"
	"github.com/garyjia/ers-reimbursement/internal/domain/workflow"
	"github.com/garyjia/ers-reimbursement/internal/report"
)

type mockReimbService struct {
	submitFunc        func(ctx context.Context, author string, req service.SubmitRequest) (*entity.Reimbursement, error)
	getFunc           func(ctx context.Context, id int64) (*entity.Reimbursement, error)
	listFunc          func(ctx context.Context) ([]*entity.Reimbursement, error)
	listForAuthorFunc func(ctx context.Context, username string) ([]*entity.Reimbursement, error)
	filterFunc        func(ctx context.Context, status, reimbType string) ([]*entity.Reimbursement, error)
	findByFunc        func(ctx context.Context, key entity.LookupKey, value string) (*entity.Reimbursement, error)
	updateFunc        func(ctx context.Context, r *entity.Reimbursement) (*entity.Reimbursement, error)
	resolveFunc       func(ctx context.Context, id int64, decision, resolver string) (*entity.Reimbursement, error)
	deleteFunc        func(ctx context.Context, id int64) error
	attachFunc        func(ctx context.Context, id int64, filename string, content io.Reader) (*entity.Reimbursement, error)
	openReceiptFunc   func(ctx context.Context, id int64) ([]byte, string, error)
}

func (m *mockReimbService) Submit(ctx context.Context, author string, req service.SubmitRequest) (*entity.Reimbursement, error) {
	if m.submitFunc != nil {
		return m.submitFunc(ctx, author, req)
	}
	return &entity.Reimbursement{ID: 1, Author: author, Amount: req.Amount, Status: entity.StatusPending}, nil
}

func (m *mockReimbService) Get(ctx context.Context, id int64) (*entity.Reimbursement, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return nil, entity.ErrNotFound
}

func (m *mockReimbService) List(ctx context.Context) ([]*entity.Reimbursement, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return []*entity.Reimbursement{}, nil
}

func (m *mockReimbService) ListForAuthor(ctx context.Context, username string) ([]*entity.Reimbursement, error) {
	if m.listForAuthorFunc != nil {
		return m.listForAuthorFunc(ctx, username)
	}
	return []*entity.Reimbursement{}, nil
}

func (m *mockReimbService) Filter(ctx context.Context, status, reimbType string) ([]*entity.Reimbursement, error) {
	if m.filterFunc != nil {
		return m.filterFunc(ctx, status, reimbType)
	}
	return []*entity.Reimbursement{}, nil
}

func (m *mockReimbService) FindBy(ctx context.Context, key entity.LookupKey, value string) (*entity.Reimbursement, error) {
	if m.findByFunc != nil {
		return m.findByFunc(ctx, key, value)
	}
	return nil, entity.ErrNotFound
}

func (m *mockReimbService) Update(ctx context.Context, r *entity.Reimbursement) (*entity.Reimbursement, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, r)
	}
	return r, nil
}

func (m *mockReimbService) Resolve(ctx context.Context, id int64, decision, resolver string) (*entity.Reimbursement, error) {
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, id, decision, resolver)
	}
	return nil, entity.ErrNotFound
}

func (m *mockReimbService) Delete(ctx context.Context, id int64) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func (m *mockReimbService) AttachReceipt(ctx context.Context, id int64, filename string, content io.Reader) (*entity.Reimbursement, error) {
	if m.attachFunc != nil {
		return m.attachFunc(ctx, id, filename, content)
	}
	return nil, entity.ErrNotFound
}

func (m *mockReimbService) OpenReceipt(ctx context.Context, id int64) ([]byte, string, error) {
	if m.openReceiptFunc != nil {
		return m.openReceiptFunc(ctx, id)
	}
	return nil, "", entity.ErrNotFound
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockHealth struct{ err error }

func (m *mockHealth) HealthCheck(ctx context.Context) error { return m.err }

func newTestServer(svc service.ReimbursementService, health HealthChecker) *Server {
	gin.SetMode(gin.TestMode)
	return NewServer(DefaultServerConfig(), svc, report.NewExcelExporter(zap.NewNop()), health, HeaderPrincipal, &mockLogger{})
}

func doRequest(s *Server, method, target string, body io.Reader, user, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(headerAuthUser, user)
	}
	if role != "" {
		req.Header.Set(headerAuthRole, role)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func aliceTaxi() *entity.Reimbursement {
	return &entity.Reimbursement{
		ID:          1,
		Amount:      decimal.RequireFromString("42.50"),
		SubmittedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		Description: "taxi",
		Author:      "alice",
		Status:      entity.StatusPending,
		Type:        entity.TypeTravel,
	}
}

func TestHandlers_HealthCheck(t *testing.T) {
	w := doRequest(newTestServer(&mockReimbService{}, &mockHealth{}), http.MethodGet, "/health", nil, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w).Success)

	w = doRequest(newTestServer(&mockReimbService{}, &mockHealth{err: errors.New("database: dial tcp db.internal:5432: connection refused")}),
		http.MethodGet, "/health", nil, "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"unhealthy"`)
	assert.NotContains(t, w.Body.String(), "db.internal")
}

func TestHandlers_Metrics(t *testing.T) {
	s := newTestServer(&mockReimbService{}, nil)
	doRequest(s, http.MethodGet, "/health", nil, "", "")

	w := doRequest(s, http.MethodGet, "/metrics", nil, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ers_http_requests_total")
}

func TestHandlers_RequestID(t *testing.T) {
	s := newTestServer(&mockReimbService{}, nil)

	w := doRequest(s, http.MethodGet, "/health", nil, "", "")
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "abc-123")
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(headerRequestID))
}

func TestHandlers_Guards(t *testing.T) {
	s := newTestServer(&mockReimbService{}, nil)

	tests := []struct {
		name   string
		method string
		target string
		user   string
		role   string
		want   int
	}{
		{"anonymous list", http.MethodGet, "/reimbs", "", "", http.StatusUnauthorized},
		{"anonymous mine", http.MethodGet, "/reimbs/mine", "", "", http.StatusUnauthorized},
		{"employee list all", http.MethodGet, "/reimbs", "alice", "employee", http.StatusForbidden},
		{"employee lookup", http.MethodGet, "/reimbs/lookup?key=id&value=1", "alice", "", http.StatusForbidden},
		{"employee resolve", http.MethodPatch, "/reimbs/1/resolve", "alice", "employee", http.StatusForbidden},
		{"employee delete", http.MethodDelete, "/reimbs/1", "alice", "employee", http.StatusForbidden},
		{"employee export", http.MethodGet, "/reimbs/export", "alice", "employee", http.StatusForbidden},
		{"admin list", http.MethodGet, "/reimbs", "admin1", "admin", http.StatusOK},
		{"employee mine", http.MethodGet, "/reimbs/mine", "alice", "employee", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(s, tt.method, tt.target, nil, tt.user, tt.role)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHandlers_ListReimbursements(t *testing.T) {
	var filterArgs []string
	listCalled := false
	svc := &mockReimbService{
		listFunc: func(ctx context.Context) ([]*entity.Reimbursement, error) {
			listCalled = true
			return []*entity.Reimbursement{aliceTaxi()}, nil
		},
		filterFunc: func(ctx context.Context, status, reimbType string) ([]*entity.Reimbursement, error) {
			filterArgs = []string{status, reimbType}
			return []*entity.Reimbursement{}, nil
		},
	}
	s := newTestServer(svc, nil)

	w := doRequest(s, http.MethodGet, "/reimbs", nil, "admin1", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, listCalled)
	assert.Len(t, decode(t, w).Data, 1)

	w = doRequest(s, http.MethodGet, "/reimbs?status=approved", nil, "admin1", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"approved", ""}, filterArgs)
}

func TestHandlers_ListMineUsesPrincipal(t *testing.T) {
	var got string
	svc := &mockReimbService{
		listForAuthorFunc: func(ctx context.Context, username string) ([]*entity.Reimbursement, error) {
			got = username
			return []*entity.Reimbursement{aliceTaxi()}, nil
		},
	}

	w := doRequest(newTestServer(svc, nil), http.MethodGet, "/reimbs/mine", nil, "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", got)
}

func TestHandlers_GetReimbursement(t *testing.T) {
	svc := &mockReimbService{
		getFunc: func(ctx context.Context, id int64) (*entity.Reimbursement, error) {
			if id == 1 {
				return aliceTaxi(), nil
			}
			return nil, entity.ErrNotFound
		},
	}
	s := newTestServer(svc, nil)

	tests := []struct {
		name   string
		target string
		user   string
		role   string
		want   int
	}{
		{"author", "/reimbs/1", "alice", "", http.StatusOK},
		{"admin", "/reimbs/1", "admin1", "admin", http.StatusOK},
		{"other employee", "/reimbs/1", "bob", "", http.StatusForbidden},
		{"absent", "/reimbs/9", "admin1", "admin", http.StatusNotFound},
		{"bad id", "/reimbs/abc", "admin1", "admin", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(s, http.MethodGet, tt.target, nil, tt.user, tt.role)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHandlers_Submit(t *testing.T) {
	var gotAuthor string
	var gotReq service.SubmitRequest
	svc := &mockReimbService{
		submitFunc: func(ctx context.Context, author string, req service.SubmitRequest) (*entity.Reimbursement, error) {
			gotAuthor = author
			gotReq = req
			if req.Type == "spaceflight" {
				return nil, &entity.UnresolvedNameError{Kind: "type", Name: req.Type}
			}
			r := aliceTaxi()
			r.Author = author
			return r, nil
		},
	}
	s := newTestServer(svc, nil)

	body := `{"amount":"42.50","description":"taxi","type":"travel"}`
	w := doRequest(s, http.MethodPost, "/reimbs", strings.NewReader(body), "alice", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "alice", gotAuthor)
	assert.True(t, gotReq.Amount.Equal(decimal.RequireFromString("42.5")))

	w = doRequest(s, http.MethodPost, "/reimbs", strings.NewReader(`{"amount":1,"description":"x","type":"spaceflight"}`), "alice", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(s, http.MethodPost, "/reimbs", strings.NewReader(`not json`), "alice", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_Resolve(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"approved", nil, http.StatusOK},
		{"already resolved", workflow.ErrInvalidTransition, http.StatusConflict},
		{"unknown decision", entity.ErrValidation, http.StatusBadRequest},
		{"absent", entity.ErrNotFound, http.StatusNotFound},
		{"store failure", errors.New("pq: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotResolver string
			svc := &mockReimbService{
				resolveFunc: func(ctx context.Context, id int64, decision, resolver string) (*entity.Reimbursement, error) {
					gotResolver = resolver
					if tt.err != nil {
						return nil, tt.err
					}
					r := aliceTaxi()
					r.Status = entity.StatusApproved
					r.Resolver = &resolver
					return r, nil
				},
			}

			w := doRequest(newTestServer(svc, nil), http.MethodPatch, "/reimbs/1/resolve",
				strings.NewReader(`{"decision":"approve"}`), "admin1", "admin")
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, "admin1", gotResolver)

			if tt.want == http.StatusInternalServerError {
				resp := decode(t, w)
				assert.Equal(t, "internal server error", resp.Error)
				assert.NotContains(t, w.Body.String(), "connection refused")
			}
		})
	}
}

func TestHandlers_ResolveRequiresDecision(t *testing.T) {
	w := doRequest(newTestServer(&mockReimbService{}, nil), http.MethodPatch, "/reimbs/1/resolve",
		strings.NewReader(`{}`), "admin1", "admin")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_UpdateSetsPathID(t *testing.T) {
	var got *entity.Reimbursement
	svc := &mockReimbService{
		updateFunc: func(ctx context.Context, r *entity.Reimbursement) (*entity.Reimbursement, error) {
			got = r
			return r, nil
		},
	}

	body := `{"id":99,"amount":"10.00","submitted_at":"2026-03-01T08:00:00Z","description":"hotel","author":"alice","status":"pending","type":"lodging"}`
	w := doRequest(newTestServer(svc, nil), http.MethodPut, "/reimbs/5", strings.NewReader(body), "admin1", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, int64(5), got.ID)
	assert.Equal(t, entity.TypeLodging, got.Type)
}

func TestHandlers_Delete(t *testing.T) {
	svc := &mockReimbService{
		deleteFunc: func(ctx context.Context, id int64) error {
			if id == 1 {
				return nil
			}
			return entity.ErrNotFound
		},
	}
	s := newTestServer(svc, nil)

	w := doRequest(s, http.MethodDelete, "/reimbs/1", nil, "admin1", "admin")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(s, http.MethodDelete, "/reimbs/2", nil, "admin1", "admin")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_Lookup(t *testing.T) {
	svc := &mockReimbService{
		findByFunc: func(ctx context.Context, key entity.LookupKey, value string) (*entity.Reimbursement, error) {
			if key != entity.LookupKeyAuthor {
				return nil, entity.ErrInvalidLookupKey
			}
			return aliceTaxi(), nil
		},
	}
	s := newTestServer(svc, nil)

	w := doRequest(s, http.MethodGet, "/reimbs/lookup?key=author&value=alice", nil, "admin1", "admin")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodGet, "/reimbs/lookup?key=password&value=x", nil, "admin1", "admin")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(s, http.MethodGet, "/reimbs/lookup", nil, "admin1", "admin")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_Export(t *testing.T) {
	svc := &mockReimbService{
		listFunc: func(ctx context.Context) ([]*entity.Reimbursement, error) {
			return []*entity.Reimbursement{aliceTaxi()}, nil
		},
	}

	w := doRequest(newTestServer(svc, nil), http.MethodGet, "/reimbs/export", nil, "admin1", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, report.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.NotZero(t, w.Body.Len())
}

func TestHandlers_UploadAndDownloadReceipt(t *testing.T) {
	var gotName string
	var gotContent []byte
	svc := &mockReimbService{
		getFunc: func(ctx context.Context, id int64) (*entity.Reimbursement, error) {
			return aliceTaxi(), nil
		},
		attachFunc: func(ctx context.Context, id int64, filename string, content io.Reader) (*entity.Reimbursement, error) {
			gotName = filename
			gotContent, _ = io.ReadAll(content)
			r := aliceTaxi()
			ref := "receipts/1/u.png"
			r.ReceiptRef = &ref
			return r, nil
		},
		openReceiptFunc: func(ctx context.Context, id int64) ([]byte, string, error) {
			return []byte("png-bytes"), "receipts/1/u.png", nil
		},
	}
	s := newTestServer(svc, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "taxi.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("png-bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/reimbs/1/receipt", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(headerAuthUser, "alice")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "taxi.png", gotName)
	assert.Equal(t, []byte("png-bytes"), gotContent)

	w = doRequest(s, http.MethodGet, "/reimbs/1/receipt", nil, "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "png-bytes", w.Body.String())

	w = doRequest(s, http.MethodGet, "/reimbs/1/receipt", nil, "bob", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandlers_UploadReceiptWithoutFile(t *testing.T) {
	svc := &mockReimbService{
		getFunc: func(ctx context.Context, id int64) (*entity.Reimbursement, error) {
			return aliceTaxi(), nil
		},
	}

	w := doRequest(newTestServer(svc, nil), http.MethodPost, "/reimbs/1/receipt", nil, "alice", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_UploadReceiptTooLarge(t *testing.T) {
	svc := &mockReimbService{
		getFunc: func(ctx context.Context, id int64) (*entity.Reimbursement, error) {
			return aliceTaxi(), nil
		},
		attachFunc: func(ctx context.Context, id int64, filename string, content io.Reader) (*entity.Reimbursement, error) {
			t.Fatal("oversized receipt reached the service")
			return nil, nil
		},
	}
	gin.SetMode(gin.TestMode)
	cfg := DefaultServerConfig()
	cfg.MaxUploadBytes = 1 << 10
	s := NewServer(cfg, svc, report.NewExcelExporter(zap.NewNop()), nil, HeaderPrincipal, &mockLogger{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "huge.png")
	require.NoError(t, err)
	_, _ = part.Write(bytes.Repeat([]byte("x"), 4<<10))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/reimbs/1/receipt", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(headerAuthUser, "alice")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "receipt too large", decode(t, w).Error)
}
