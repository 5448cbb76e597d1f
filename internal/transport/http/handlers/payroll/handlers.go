package payrollhandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"hrpayroll/internal/domain/audit"
	"hrpayroll/internal/domain/auth"
	"hrpayroll/internal/domain/payroll"
	"hrpayroll/internal/platform/metrics"
	"hrpayroll/internal/requestctx"
	"hrpayroll/internal/transport/http/api"
	"hrpayroll/internal/transport/http/middleware"
	"hrpayroll/internal/transport/http/shared"
)

const idempotencyEndpointSave = "payroll.records.save"

type RecordService interface {
	Preview(req payroll.PreviewRequest) payroll.TotalsResult
	Save(ctx context.Context, actor payroll.Actor, in payroll.SaveInput) (payroll.Record, error)
	Get(ctx context.Context, tenantID, id string) (payroll.Record, error)
	List(ctx context.Context, tenantID string, filter payroll.ListFilter, limit, offset int) ([]payroll.RecordSummary, int, error)
	Delete(ctx context.Context, actor payroll.Actor, id string) error
	Payslip(ctx context.Context, tenantID, id string) ([]byte, error)
}

type IdempotencyStore interface {
	Check(ctx context.Context, tenantID, userID, endpoint, key, requestHash string) (json.RawMessage, bool, error)
	Save(ctx context.Context, tenantID, userID, endpoint, key, requestHash string, response json.RawMessage) error
}

type HistorySource interface {
	List(ctx context.Context, tenantID string, filter audit.Filter, limit, offset int) ([]audit.Event, error)
}

type Handler struct {
	Service     RecordService
	Perms       middleware.PermissionStore
	Idempotency IdempotencyStore
	History     HistorySource
	Metrics     *metrics.Collector
}

func NewHandler(service RecordService, perms middleware.PermissionStore, idempotency IdempotencyStore, history HistorySource, collector *metrics.Collector) *Handler {
	return &Handler{Service: service, Perms: perms, Idempotency: idempotency, History: history, Metrics: collector}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Post("/calc-preview", h.handlePreview)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/records", h.handleListRecords)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/records", h.handleSaveRecord)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/records/{recordID}", h.handleGetRecord)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Delete("/records/{recordID}", h.handleDeleteRecord)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/records/{recordID}/payslip", h.handlePayslip)
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/records/{recordID}/history", h.handleRecordHistory)
	})
}

type saveRules struct {
	EmployeeID string            `json:"employee_id" validate:"required,max=64"`
	Period     string            `json:"period" validate:"required,max=32"`
	Lines      []payroll.PayLine `json:"lines" validate:"max=500"`
}

type listRules struct {
	EmployeeID string `json:"employeeId" validate:"max=64"`
	Period     string `json:"period" validate:"max=32"`
}

type listResponse struct {
	Records []payroll.RecordSummary `json:"records"`
	Page    shared.PageMeta         `json:"page"`
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var req payroll.PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	v := shared.NewValidator()
	v.Struct(struct {
		Lines []payroll.PayLine `json:"lines" validate:"max=500"`
	}{req.Lines})
	if v.Reject(w, requestID) {
		return
	}

	result := h.Service.Preview(req)
	h.Metrics.Preview()
	api.Success(w, result, requestID)
}

func (h *Handler) handleSaveRecord(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	var req payroll.PreviewRequest
	if err := json.Unmarshal(body, &req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	v := shared.NewValidator()
	v.Struct(saveRules{EmployeeID: req.Header.EmployeeID, Period: req.Header.Period, Lines: req.Lines})
	if v.Reject(w, requestID) {
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	requestHash := middleware.RequestHash(body)
	if idempotencyKey != "" && h.Idempotency != nil {
		stored, found, err := h.Idempotency.Check(r.Context(), user.TenantID, user.UserID, idempotencyEndpointSave, idempotencyKey, requestHash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key reused with a different payload", requestID)
			return
		}
		if err != nil {
			requestctx.Logger(r.Context()).Warn("idempotency check failed", "err", err)
		}
		if found {
			api.Created(w, json.RawMessage(stored), requestID)
			return
		}
	}

	record, err := h.Service.Save(r.Context(), actorFrom(r, user), payroll.SaveInput{
		Header:            req.Header,
		Lines:             req.Lines,
		ExperienceRateTRY: req.ExperienceRateTRY,
	})
	if err != nil {
		h.fail(w, r, err, "payroll_save_failed", "failed to save payroll record")
		return
	}
	h.Metrics.RecordSaved()

	if idempotencyKey != "" && h.Idempotency != nil {
		payload, err := json.Marshal(record)
		if err != nil {
			requestctx.Logger(r.Context()).Warn("record response marshal failed", "err", err)
		} else if err := h.Idempotency.Save(r.Context(), user.TenantID, user.UserID, idempotencyEndpointSave, idempotencyKey, requestHash, payload); err != nil {
			requestctx.Logger(r.Context()).Warn("idempotency save failed", "err", err)
		}
	}

	api.Created(w, record, requestID)
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}

	query := r.URL.Query()
	filter := payroll.ListFilter{
		EmployeeID: strings.TrimSpace(query.Get("employeeId")),
		Period:     strings.TrimSpace(query.Get("period")),
	}
	v := shared.NewValidator()
	v.Struct(listRules{EmployeeID: filter.EmployeeID, Period: filter.Period})
	if v.Reject(w, requestID) {
		return
	}

	page := shared.ParsePagination(r, shared.DefaultPageLimit, shared.MaxPageLimit)
	records, total, err := h.Service.List(r.Context(), user.TenantID, filter, page.Limit, page.Offset)
	if err != nil {
		h.fail(w, r, err, "payroll_records_failed", "failed to list payroll records")
		return
	}
	if records == nil {
		records = []payroll.RecordSummary{}
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, listResponse{Records: records, Page: page.Meta(total)}, requestID)
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}

	record, err := h.Service.Get(r.Context(), user.TenantID, chi.URLParam(r, "recordID"))
	if err != nil {
		h.fail(w, r, err, "payroll_record_failed", "failed to load payroll record")
		return
	}
	api.Success(w, record, requestID)
}

func (h *Handler) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}

	recordID := chi.URLParam(r, "recordID")
	if err := h.Service.Delete(r.Context(), actorFrom(r, user), recordID); err != nil {
		h.fail(w, r, err, "payroll_delete_failed", "failed to delete payroll record")
		return
	}
	api.Success(w, map[string]string{"id": recordID, "status": "deleted"}, requestID)
}

func (h *Handler) handlePayslip(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}

	recordID := chi.URLParam(r, "recordID")
	pdf, err := h.Service.Payslip(r.Context(), user.TenantID, recordID)
	if err != nil {
		h.fail(w, r, err, "payslip_failed", "failed to render payslip")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="payslip-`+recordID+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		requestctx.Logger(r.Context()).Warn("payslip write failed", "err", err)
	}
}

func (h *Handler) handleRecordHistory(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	if h.History == nil {
		api.Fail(w, http.StatusNotImplemented, "history_unavailable", "audit history not configured", requestID)
		return
	}

	page := shared.ParsePagination(r, shared.DefaultPageLimit, shared.MaxPageLimit)
	events, err := h.History.List(r.Context(), user.TenantID, audit.Filter{
		EntityType: payroll.AuditEntityRecord,
		EntityID:   chi.URLParam(r, "recordID"),
	}, page.Limit, page.Offset)
	if err != nil {
		h.fail(w, r, err, "payroll_history_failed", "failed to load record history")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	api.Success(w, events, requestID)
}

func actorFrom(r *http.Request, user auth.UserContext) payroll.Actor {
	return payroll.Actor{
		TenantID:  user.TenantID,
		UserID:    user.UserID,
		RequestID: middleware.GetRequestID(r.Context()),
		IP:        shared.ClientIP(r),
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, payroll.ErrRecordNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "payroll record not found", requestID)
	case errors.Is(err, payroll.ErrEmployeeRequired):
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "employee_id", Reason: "is required"}})
	case errors.Is(err, payroll.ErrPeriodRequired):
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "period", Reason: "is required"}})
	case errors.Is(err, payroll.ErrInvalidPeriod):
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "period", Reason: "must be a month like YYYY-MM"}})
	default:
		requestctx.Logger(r.Context()).Error(message, "err", err, "path", r.URL.Path)
		api.Fail(w, http.StatusInternalServerError, code, message, requestID)
	}
}
