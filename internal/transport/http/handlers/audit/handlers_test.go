package audithandler

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"hrpayroll/internal/domain/audit"
	"hrpayroll/internal/domain/auth"
	"hrpayroll/internal/transport/http/middleware"
)

type stubEvents struct {
	filter audit.Filter
	events []audit.Event
}

func (s *stubEvents) Count(_ context.Context, _ string, filter audit.Filter) (int, error) {
	s.filter = filter
	return len(s.events), nil
}

func (s *stubEvents) List(_ context.Context, _ string, filter audit.Filter, _, _ int) ([]audit.Event, error) {
	s.filter = filter
	return s.events, nil
}

func newRouter(source EventSource, role string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithUser(req.Context(), auth.UserContext{UserID: "u1", TenantID: "t1", RoleID: role})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewHandler(source, auth.NewStaticPermissions(auth.RolePermissions)).RegisterRoutes(r)
	return r
}

func TestListEventsPassesFilter(t *testing.T) {
	source := &stubEvents{events: []audit.Event{{ID: "e1", Action: "payroll.record.save"}}}
	rec := httptest.NewRecorder()
	newRouter(source, auth.RoleHR).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/events?action=payroll.record.save&entityId=r1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Total-Count") != "1" {
		t.Fatalf("unexpected total header %q", rec.Header().Get("X-Total-Count"))
	}
	if source.filter.Action != "payroll.record.save" || source.filter.EntityID != "r1" {
		t.Fatalf("unexpected filter %+v", source.filter)
	}
}

func TestListEventsRequiresAuditPermission(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubEvents{}, auth.RoleAccountant).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/events", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestExportEventsCSV(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	source := &stubEvents{events: []audit.Event{{ID: "e1", ActorID: "u1", Action: "payroll.record.delete", EntityType: "payroll_record", EntityID: "r1", CreatedAt: created}}}
	rec := httptest.NewRecorder()
	newRouter(source, auth.RoleSystemAdmin).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/events/export", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d", len(rows))
	}
	if rows[1][2] != "payroll.record.delete" || rows[1][7] != "2026-03-01T10:00:00Z" {
		t.Fatalf("unexpected row %v", rows[1])
	}
}
