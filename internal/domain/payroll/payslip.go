package payroll

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

var kindNames = map[AllowanceKind]string{
	KindMinimumBase:    "Minimum base",
	KindAdministrative: "Administrative allowance",
	KindEducation:      "Education allowance",
	KindExperience:     "Experience allowance",
}

// Payslip renders the stored record as a PDF. When a payslip directory is
// configured the first rendering is archived there, encrypted if a data key
// is set, and later requests are served from the archive.
func (s *Service) Payslip(ctx context.Context, tenantID, id string) ([]byte, error) {
	record, err := s.store.GetRecord(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if s.payslipDir != "" {
		archived, err := s.readArchive(record.ID)
		if err != nil {
			return nil, err
		}
		if archived != nil {
			return archived, nil
		}
	}
	data, err := RenderPayslip(record)
	if err != nil {
		return nil, err
	}
	if s.payslipDir != "" {
		if _, err := s.archivePayslip(record.ID, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (s *Service) archivePath(recordID string) string {
	filePath := filepath.Join(s.payslipDir, recordID+".pdf")
	if s.crypto != nil && s.crypto.Configured() {
		filePath += ".enc"
	}
	return filePath
}

func (s *Service) archivePayslip(recordID string, data []byte) (string, error) {
	if err := os.MkdirAll(s.payslipDir, 0o755); err != nil {
		return "", err
	}
	filePath := s.archivePath(recordID)
	if s.crypto != nil && s.crypto.Configured() {
		encrypted, err := s.crypto.Encrypt(data)
		if err != nil {
			return "", err
		}
		return filePath, os.WriteFile(filePath, encrypted, 0o600)
	}
	return filePath, os.WriteFile(filePath, data, 0o600)
}

// readArchive returns nil, nil when no archived copy exists.
func (s *Service) readArchive(recordID string) ([]byte, error) {
	raw, err := os.ReadFile(s.archivePath(recordID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.crypto != nil && s.crypto.Configured() {
		plain, err := s.crypto.Decrypt(raw)
		if err != nil {
			return nil, fmt.Errorf("decrypt archived payslip %s: %w", recordID, err)
		}
		return plain, nil
	}
	return raw, nil
}

func RenderPayslip(record Record) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, tr(fmt.Sprintf("Employee: %s", record.EmployeeID)))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %s", record.Period))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Years of experience: %s", record.Header.YearsOfExp.String()))
	pdf.Ln(10)

	header := func() {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(100, 7, "", "B", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, string(CurrencyTRY), "B", 0, "R", false, 0, "")
		pdf.CellFormat(40, 7, string(CurrencyUSD), "B", 1, "R", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
	}
	row := func(label string, try, usd decimal.Decimal) {
		pdf.CellFormat(100, 7, tr(label), "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, try.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 7, usd.StringFixed(2), "", 1, "R", false, 0, "")
	}
	lineRow := func(line PayLine) {
		var try, usd decimal.Decimal
		switch line.Currency {
		case CurrencyTRY:
			try = line.Amount
		case CurrencyUSD:
			usd = line.Amount
		}
		row(lineName(line), try, usd)
	}

	header()
	for _, line := range record.Totals.Allowances {
		lineRow(line)
	}
	totals := record.Totals
	pdf.SetFont("Helvetica", "B", 11)
	row("Total allowances", totals.TotalAllowances.TRY, totals.TotalAllowances.USD)
	pdf.SetFont("Helvetica", "", 11)
	row("Monthly indemnity", totals.IndemnMonthly.TRY, totals.IndemnMonthly.USD)
	row("Gross", totals.Gross.TRY, totals.Gross.USD)
	pdf.Ln(4)

	for _, line := range record.Lines {
		if line.Category == CategoryDeduction {
			lineRow(line)
		}
	}
	row("Total deductions", totals.TotalDeductions.TRY, totals.TotalDeductions.USD)
	pdf.SetFont("Helvetica", "B", 12)
	row("Net", totals.Net.TRY, totals.Net.USD)

	if len(totals.Breakdown)+len(totals.Cash) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 10)
		pdf.Cell(0, 7, "Payment details")
		pdf.Ln(7)
		pdf.SetFont("Helvetica", "", 10)
		for _, line := range totals.Breakdown {
			lineRow(line)
		}
		for _, line := range totals.Cash {
			lineRow(line)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var categoryNames = map[Category]string{
	CategoryAllowance: "allowance",
	CategoryException: "exception",
	CategoryBreakdown: "breakdown",
	CategoryCash:      "cash",
	CategoryIndemnity: "indemnity",
	CategoryDeduction: "deduction",
}

// lineName prefers the fixed English name of reserved kinds. Free-text labels
// are followed by their category, since the PDF font cannot shape Arabic.
func lineName(line PayLine) string {
	if name, ok := kindNames[line.Kind]; ok {
		return name
	}
	category, ok := categoryNames[line.Category]
	if !ok {
		category = string(line.Category)
	}
	if line.Label == "" {
		return category
	}
	return fmt.Sprintf("%s (%s)", line.Label, category)
}

// PruneArchive removes archived payslips last written before cutoff and
// reports how many were removed.
func (s *Service) PruneArchive(cutoff time.Time) (int, error) {
	if s.payslipDir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(s.payslipDir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".pdf") || strings.HasSuffix(name, ".pdf.enc")) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return removed, err
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.payslipDir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
