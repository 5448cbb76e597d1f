package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

// CreateRecord writes the header, its lines and the computed totals in one
// transaction.
func (s *Store) CreateRecord(ctx context.Context, tenantID string, record Record) (Record, error) {
	totalsJSON, err := json.Marshal(record.Totals)
	if err != nil {
		return Record{}, err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.QueryRow(ctx, `
    INSERT INTO payroll_records (id, tenant_id, employee_id, period, base_min, years_of_exp, experience_rate_try,
                                 net_try, net_usd, totals_json, created_by)
    VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7::numeric,$8::numeric,$9::numeric,$10,$11)
    RETURNING created_at
  `, record.ID, tenantID, record.EmployeeID, record.Period,
		record.Header.BaseMin.String(), record.Header.YearsOfExp.String(), record.ExperienceRateTRY.String(),
		record.Totals.Net.TRY.String(), record.Totals.Net.USD.String(), totalsJSON, nullIfEmpty(record.CreatedBy),
	).Scan(&record.CreatedAt); err != nil {
		return Record{}, fmt.Errorf("insert payroll record: %w", err)
	}

	batch := &pgx.Batch{}
	for i, line := range record.Lines {
		batch.Queue(`
      INSERT INTO payroll_lines (record_id, position, category, kind, label, currency, amount)
      VALUES ($1,$2,$3,$4,$5,$6,$7::numeric)
    `, record.ID, i, string(line.Category), string(line.Kind), line.Label, string(line.Currency), line.Amount.String())
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return Record{}, fmt.Errorf("insert payroll lines: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, err
	}
	return record, nil
}

func (s *Store) GetRecord(ctx context.Context, tenantID, id string) (Record, error) {
	var record Record
	var baseMin, yearsOfExp, rate string
	var totalsJSON []byte
	err := s.DB.QueryRow(ctx, `
    SELECT id::text, employee_id, period, base_min::text, years_of_exp::text, experience_rate_try::text,
           totals_json, COALESCE(created_by, ''), created_at
    FROM payroll_records
    WHERE tenant_id = $1 AND id::text = $2
  `, tenantID, id).Scan(&record.ID, &record.EmployeeID, &record.Period, &baseMin, &yearsOfExp, &rate,
		&totalsJSON, &record.CreatedBy, &record.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}

	record.Header = PayHeader{
		EmployeeID: record.EmployeeID,
		Period:     record.Period,
		BaseMin:    parseNumeric(baseMin),
		YearsOfExp: parseNumeric(yearsOfExp),
	}
	record.ExperienceRateTRY = parseNumeric(rate)
	if err := json.Unmarshal(totalsJSON, &record.Totals); err != nil {
		return Record{}, fmt.Errorf("decode totals of record %s: %w", record.ID, err)
	}

	lines, err := s.listLines(ctx, record.ID)
	if err != nil {
		return Record{}, err
	}
	record.Lines = lines
	return record, nil
}

func (s *Store) listLines(ctx context.Context, recordID string) ([]PayLine, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT category, label, currency, amount::text
    FROM payroll_lines
    WHERE record_id::text = $1
    ORDER BY position
  `, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]PayLine, 0)
	for rows.Next() {
		var category, label, currency, amount string
		if err := rows.Scan(&category, &label, &currency, &amount); err != nil {
			return nil, err
		}
		lines = append(lines, NewPayLine(Category(category), label, Currency(currency), parseNumeric(amount)))
	}
	return lines, rows.Err()
}

func (s *Store) CountRecords(ctx context.Context, tenantID string, filter ListFilter) (int, error) {
	query, args := buildRecordQuery("SELECT COUNT(1)", tenantID, filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListRecords(ctx context.Context, tenantID string, filter ListFilter, limit, offset int) ([]RecordSummary, error) {
	query, args := buildRecordQuery("SELECT id::text, employee_id, period, net_try::text, net_usd::text, created_at", tenantID, filter)
	query += fmt.Sprintf(" ORDER BY period DESC, created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecordSummary
	for rows.Next() {
		var summary RecordSummary
		var netTRY, netUSD string
		if err := rows.Scan(&summary.ID, &summary.EmployeeID, &summary.Period, &netTRY, &netUSD, &summary.CreatedAt); err != nil {
			return nil, err
		}
		summary.Net = NewMoneyPair(parseNumeric(netTRY), parseNumeric(netUSD))
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *Store) DeleteRecord(ctx context.Context, tenantID, id string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM payroll_records WHERE tenant_id = $1 AND id::text = $2", tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func buildRecordQuery(prefix, tenantID string, filter ListFilter) (string, []any) {
	query := prefix + " FROM payroll_records WHERE tenant_id = $1"
	args := []any{tenantID}
	if filter.EmployeeID != "" {
		query += fmt.Sprintf(" AND employee_id = $%d", len(args)+1)
		args = append(args, filter.EmployeeID)
	}
	if filter.Period != "" {
		query += fmt.Sprintf(" AND period = $%d", len(args)+1)
		args = append(args, filter.Period)
	}
	return query, args
}

func parseNumeric(raw string) decimal.Decimal {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return value
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
