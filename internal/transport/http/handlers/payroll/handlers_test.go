package payrollhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrpayroll/internal/domain/audit"
	"hrpayroll/internal/domain/auth"
	"hrpayroll/internal/domain/payroll"
	"hrpayroll/internal/platform/metrics"
	"hrpayroll/internal/transport/http/middleware"
)

type memoryStore struct {
	records map[string]payroll.Record
	seq     int
}

func (m *memoryStore) CreateRecord(_ context.Context, _ string, record payroll.Record) (payroll.Record, error) {
	m.seq++
	record.ID = fmt.Sprintf("rec-%d", m.seq)
	record.CreatedAt = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	m.records[record.ID] = record
	return record, nil
}

func (m *memoryStore) GetRecord(_ context.Context, _ string, id string) (payroll.Record, error) {
	record, ok := m.records[id]
	if !ok {
		return payroll.Record{}, payroll.ErrRecordNotFound
	}
	return record, nil
}

func (m *memoryStore) CountRecords(ctx context.Context, tenantID string, filter payroll.ListFilter) (int, error) {
	out, err := m.ListRecords(ctx, tenantID, filter, len(m.records), 0)
	return len(out), err
}

func (m *memoryStore) ListRecords(_ context.Context, _ string, filter payroll.ListFilter, limit, offset int) ([]payroll.RecordSummary, error) {
	var out []payroll.RecordSummary
	for _, record := range m.records {
		if filter.EmployeeID != "" && filter.EmployeeID != record.EmployeeID {
			continue
		}
		if filter.Period != "" && filter.Period != record.Period {
			continue
		}
		out = append(out, payroll.RecordSummary{ID: record.ID, EmployeeID: record.EmployeeID, Period: record.Period, Net: record.Totals.Net, CreatedAt: record.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) DeleteRecord(_ context.Context, _ string, id string) error {
	if _, ok := m.records[id]; !ok {
		return payroll.ErrRecordNotFound
	}
	delete(m.records, id)
	return nil
}

type idempotencyEntry struct {
	hash     string
	response json.RawMessage
}

type memoryIdempotency struct {
	entries map[string]idempotencyEntry
}

func (m *memoryIdempotency) Check(_ context.Context, tenantID, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error) {
	entry, ok := m.entries[tenantID+userID+endpoint+key]
	if !ok {
		return nil, false, nil
	}
	if entry.hash != requestHash {
		return nil, false, middleware.ErrIdempotencyConflict
	}
	return entry.response, true, nil
}

func (m *memoryIdempotency) Save(_ context.Context, tenantID, userID, endpoint, key, requestHash string, response json.RawMessage) error {
	m.entries[tenantID+userID+endpoint+key] = idempotencyEntry{hash: requestHash, response: response}
	return nil
}

type memoryHistory struct {
	events []audit.Event
	filter audit.Filter
}

func (m *memoryHistory) Record(_ context.Context, _, actorID, action, entityType, entityID, requestID, ip string, _, _ any) error {
	m.events = append(m.events, audit.Event{ActorID: actorID, Action: action, EntityType: entityType, EntityID: entityID, RequestID: requestID, IP: ip})
	return nil
}

func (m *memoryHistory) List(_ context.Context, _ string, filter audit.Filter, _, _ int) ([]audit.Event, error) {
	m.filter = filter
	var out []audit.Event
	for _, evt := range m.events {
		if evt.EntityID == filter.EntityID && evt.EntityType == filter.EntityType {
			out = append(out, evt)
		}
	}
	return out, nil
}

type fixture struct {
	router    http.Handler
	store     *memoryStore
	history   *memoryHistory
	collector *metrics.Collector
}

func newFixture(t *testing.T, role string) fixture {
	t.Helper()
	store := &memoryStore{records: map[string]payroll.Record{}}
	history := &memoryHistory{}
	collector := metrics.New()
	service := payroll.NewService(store, history, payroll.Options{DefaultExperienceRateTRY: decimal.NewFromInt(100)})
	h := NewHandler(service, auth.NewStaticPermissions(auth.RolePermissions), &memoryIdempotency{entries: map[string]idempotencyEntry{}}, history, collector)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if role != "" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				user := auth.UserContext{UserID: "u1", TenantID: "t1", RoleID: role, RoleName: role}
				next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), user)))
			})
		})
	}
	r.Route("/api/v1", h.RegisterRoutes)
	return fixture{router: r, store: store, history: history, collector: collector}
}

func (f fixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
	RequestID string `json:"requestId"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

const previewBody = `{
  "header": { "base_min": 5000, "years_of_exp": 3 },
  "lines": [
    { "category": "allowance", "label": "بدل علاوة إدارية", "currency": "TRY", "amount": 800 },
    { "category": "deduction", "label": "سلفة", "currency": "TRY", "amount": 300 }
  ],
  "experienceRateTRY": 100
}`

const saveBody = `{
  "header": { "employee_id": "emp-7", "period": "3/2026", "base_min": "1200", "years_of_exp": 2 },
  "lines": [
    { "category": "allowance", "label": "بدل المؤهل العلمي", "currency": "USD", "amount": 100 },
    { "category": "deduction", "label": "قرض", "currency": "TRY", "amount": 200 },
    { "category": "cash", "label": "نقدي", "currency": "TRY", "amount": 50 }
  ],
  "experienceRateTRY": 50
}`

func TestPreviewReturnsTotals(t *testing.T) {
	f := newFixture(t, auth.RoleManager)

	rec := f.do(http.MethodPost, "/api/v1/payroll/calc-preview", previewBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)
	var totals payroll.TotalsResult
	require.NoError(t, json.Unmarshal(env.Data, &totals))
	assert.True(t, decimal.NewFromInt(6100).Equal(totals.TotalAllowances.TRY))
	assert.True(t, decimal.NewFromInt(5800).Equal(totals.Net.TRY))
	assert.Equal(t, "508.33", totals.IndemnMonthly.TRY.StringFixed(2))
	assert.Equal(t, uint64(1), f.collector.Snapshot()["payrollPreviewsTotal"])
}

func TestPreviewUsesDefaultRateWhenOmitted(t *testing.T) {
	f := newFixture(t, auth.RoleHR)

	rec := f.do(http.MethodPost, "/api/v1/payroll/calc-preview", `{"header":{"base_min":1000,"years_of_exp":2}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var totals payroll.TotalsResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &totals))
	assert.True(t, decimal.NewFromInt(1200).Equal(totals.TotalAllowances.TRY))
}

func TestPreviewRejectsMalformedJSON(t *testing.T) {
	f := newFixture(t, auth.RoleHR)

	for _, body := range []string{"", "{", `{"lines": "nope"}`} {
		rec := f.do(http.MethodPost, "/api/v1/payroll/calc-preview", body)
		assert.Equalf(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
}

func TestPreviewPermissions(t *testing.T) {
	rec := newFixture(t, "").do(http.MethodPost, "/api/v1/payroll/calc-preview", previewBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = newFixture(t, auth.RoleEmployee).do(http.MethodPost, "/api/v1/payroll/calc-preview", previewBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSaveGetListDeleteRecord(t *testing.T) {
	f := newFixture(t, auth.RoleHR)

	rec := f.do(http.MethodPost, "/api/v1/payroll/records", saveBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var saved struct {
		ID         string               `json:"id"`
		EmployeeID string               `json:"employeeId"`
		Period     string               `json:"period"`
		Totals     payroll.TotalsResult `json:"totals"`
		CreatedBy  string               `json:"createdBy"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &saved))
	assert.Equal(t, "emp-7", saved.EmployeeID)
	assert.Equal(t, "2026-03", saved.Period)
	assert.Equal(t, "u1", saved.CreatedBy)
	assert.True(t, decimal.NewFromInt(1100).Equal(saved.Totals.Net.TRY))
	assert.True(t, decimal.NewFromInt(100).Equal(saved.Totals.Net.USD))
	assert.Len(t, saved.Totals.Cash, 1)
	assert.Equal(t, uint64(1), f.collector.Snapshot()["payrollRecordsSaved"])

	rec = f.do(http.MethodGet, "/api/v1/payroll/records/"+saved.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/payroll/records?employeeId=emp-7&period=2026/3", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))
	var list listResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &list))
	require.Len(t, list.Records, 1)
	assert.Equal(t, saved.ID, list.Records[0].ID)
	assert.Equal(t, 1, list.Page.Total)

	rec = f.do(http.MethodGet, "/api/v1/payroll/records/"+saved.ID+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []audit.Event
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &events))
	require.Len(t, events, 1)
	assert.Equal(t, payroll.AuditActionSave, events[0].Action)
	assert.Equal(t, payroll.AuditEntityRecord, f.history.filter.EntityType)

	rec = f.do(http.MethodDelete, "/api/v1/payroll/records/"+saved.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodGet, "/api/v1/payroll/records/"+saved.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(http.MethodDelete, "/api/v1/payroll/records/"+saved.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRecordsEmptyIsArray(t *testing.T) {
	f := newFixture(t, auth.RoleManager)

	rec := f.do(http.MethodGet, "/api/v1/payroll/records", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"records":[],"page":{"limit":50,"offset":0,"total":0}}`, string(decodeEnvelope(t, rec).Data))
}

func TestListRecordsRejectsBadPeriod(t *testing.T) {
	f := newFixture(t, auth.RoleManager)

	rec := f.do(http.MethodGet, "/api/v1/payroll/records?period=someday", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeEnvelope(t, rec).Error.Code)
}

func TestSaveValidation(t *testing.T) {
	f := newFixture(t, auth.RoleHR)

	rec := f.do(http.MethodPost, "/api/v1/payroll/records", `{"header":{"period":"2026-01"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "validation_error", env.Error.Code)
	fields, _ := json.Marshal(env.Error.Details["fields"])
	assert.Contains(t, string(fields), "employee_id")

	rec = f.do(http.MethodPost, "/api/v1/payroll/records", `{"header":{"employee_id":"e","period":"2026-13"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeEnvelope(t, rec).Error.Code)
	assert.Empty(t, f.store.records)
}

func TestSaveRequiresWritePermission(t *testing.T) {
	f := newFixture(t, auth.RoleManager)

	rec := f.do(http.MethodPost, "/api/v1/payroll/records", saveBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSaveIdempotencyReplaysAndConflicts(t *testing.T) {
	f := newFixture(t, auth.RoleAccountant)

	first := f.do(http.MethodPost, "/api/v1/payroll/records", saveBody, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := f.do(http.MethodPost, "/api/v1/payroll/records", saveBody, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, second.Code)

	assert.JSONEq(t, string(decodeEnvelope(t, first).Data), string(decodeEnvelope(t, second).Data))
	assert.Len(t, f.store.records, 1)

	changed := strings.Replace(saveBody, "emp-7", "emp-8", 1)
	conflict := f.do(http.MethodPost, "/api/v1/payroll/records", changed, "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusConflict, conflict.Code)
}

func TestPayslipDownload(t *testing.T) {
	f := newFixture(t, auth.RoleHR)
	rec := f.do(http.MethodPost, "/api/v1/payroll/records", saveBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	var saved struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &saved))

	rec = f.do(http.MethodGet, "/api/v1/payroll/records/"+saved.ID+"/payslip", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = f.do(http.MethodGet, "/api/v1/payroll/records/missing/payslip", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type failingService struct {
	RecordService
}

func (failingService) Get(context.Context, string, string) (payroll.Record, error) {
	return payroll.Record{}, errors.New("connection reset")
}

func TestServiceErrorMapsToInternal(t *testing.T) {
	h := NewHandler(failingService{}, auth.NewStaticPermissions(auth.RolePermissions), nil, nil, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithUser(req.Context(), auth.UserContext{UserID: "u", TenantID: "t", RoleID: auth.RoleHR})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payroll/records/r1", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payroll/records/r1/history", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServiceErrorLogCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	h := NewHandler(failingService{}, auth.NewStaticPermissions(auth.RolePermissions), nil, nil, nil)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithUser(req.Context(), auth.UserContext{UserID: "u", TenantID: "t", RoleID: auth.RoleHR})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/payroll/records/r1", nil)
	req.Header.Set("X-Request-ID", "req-log-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "req-log-1", entry["requestId"])
	assert.Equal(t, "/payroll/records/r1", entry["path"])
}
