package payroll

import "context"

type StoreAPI interface {
	CreateRecord(ctx context.Context, tenantID string, record Record) (Record, error)
	GetRecord(ctx context.Context, tenantID, id string) (Record, error)
	CountRecords(ctx context.Context, tenantID string, filter ListFilter) (int, error)
	ListRecords(ctx context.Context, tenantID string, filter ListFilter, limit, offset int) ([]RecordSummary, error)
	DeleteRecord(ctx context.Context, tenantID, id string) error
}

var _ StoreAPI = (*Store)(nil)
