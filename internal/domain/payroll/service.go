package payroll

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	cryptoutil "hrpayroll/internal/platform/crypto"
	"hrpayroll/internal/requestctx"
)

type Auditor interface {
	Record(ctx context.Context, tenantID, actorID, action, entityType, entityID, requestID, ip string, before, after any) error
}

// Actor identifies who triggered a mutation, for scoping and the audit trail.
type Actor struct {
	TenantID  string
	UserID    string
	RequestID string
	IP        string
}

type Options struct {
	Crypto                   *cryptoutil.Service
	PayslipDir               string
	DefaultExperienceRateTRY decimal.Decimal
}

type Service struct {
	store       StoreAPI
	audit       Auditor
	crypto      *cryptoutil.Service
	payslipDir  string
	defaultRate decimal.Decimal
}

func NewService(store StoreAPI, auditor Auditor, opts Options) *Service {
	return &Service{
		store:       store,
		audit:       auditor,
		crypto:      opts.Crypto,
		payslipDir:  opts.PayslipDir,
		defaultRate: opts.DefaultExperienceRateTRY,
	}
}

func (s *Service) rate(requested *decimal.Decimal) decimal.Decimal {
	if requested != nil {
		return *requested
	}
	return s.defaultRate
}

func (s *Service) Preview(req PreviewRequest) TotalsResult {
	return ComputeTotals(req.Header, req.Lines, s.rate(req.ExperienceRateTRY))
}

func (s *Service) Save(ctx context.Context, actor Actor, input SaveInput) (Record, error) {
	employeeID := strings.TrimSpace(input.Header.EmployeeID)
	if employeeID == "" {
		return Record{}, ErrEmployeeRequired
	}
	period, err := NormalizePeriod(input.Header.Period)
	if err != nil {
		return Record{}, err
	}
	if period == "" {
		return Record{}, ErrPeriodRequired
	}

	header := input.Header
	header.EmployeeID = employeeID
	header.Period = period
	lines := input.Lines
	if lines == nil {
		lines = []PayLine{}
	}
	rate := s.rate(input.ExperienceRateTRY)

	record, err := s.store.CreateRecord(ctx, actor.TenantID, Record{
		EmployeeID:        employeeID,
		Period:            period,
		Header:            header,
		Lines:             lines,
		ExperienceRateTRY: rate,
		Totals:            ComputeTotals(header, lines, rate),
		CreatedBy:         actor.UserID,
	})
	if err != nil {
		return Record{}, fmt.Errorf("save payroll record: %w", err)
	}

	s.record(ctx, actor, AuditActionSave, record.ID, nil, record)
	return record, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (Record, error) {
	return s.store.GetRecord(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID string, filter ListFilter, limit, offset int) ([]RecordSummary, int, error) {
	if filter.Period != "" {
		period, err := NormalizePeriod(filter.Period)
		if err != nil {
			return nil, 0, err
		}
		filter.Period = period
	}
	total, err := s.store.CountRecords(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	records, err := s.store.ListRecords(ctx, tenantID, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *Service) Delete(ctx context.Context, actor Actor, id string) error {
	before, err := s.store.GetRecord(ctx, actor.TenantID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRecord(ctx, actor.TenantID, id); err != nil {
		return err
	}
	s.record(ctx, actor, AuditActionDelete, id, before, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actor Actor, action, entityID string, before, after any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, actor.TenantID, actor.UserID, action, AuditEntityRecord, entityID, actor.RequestID, actor.IP, before, after); err != nil {
		requestctx.Logger(ctx).Warn("audit record failed", "action", action, "entityId", entityID, "err", err)
	}
}
