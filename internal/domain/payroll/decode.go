package payroll

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// lenientDecimal accepts a JSON number, a numeric string or null. Anything
// else, including a missing value, is zero.
func lenientDecimal(raw json.RawMessage) decimal.Decimal {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero
	}
	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero
		}
		text = strings.TrimSpace(s)
	}
	if text == "" {
		return decimal.Zero
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero
	}
	return value
}

func lenientString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

type payHeaderJSON struct {
	EmployeeID string      `json:"employee_id,omitempty"`
	Period     string      `json:"period,omitempty"`
	BaseMin    json.Number `json:"base_min"`
	YearsOfExp json.Number `json:"years_of_exp"`
}

func (h PayHeader) MarshalJSON() ([]byte, error) {
	return json.Marshal(payHeaderJSON{
		EmployeeID: h.EmployeeID,
		Period:     h.Period,
		BaseMin:    number(h.BaseMin),
		YearsOfExp: number(h.YearsOfExp),
	})
}

func (h *PayHeader) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*h = PayHeader{}
		return nil
	}
	*h = PayHeader{
		EmployeeID: strings.TrimSpace(lenientString(raw["employee_id"])),
		Period:     strings.TrimSpace(lenientString(raw["period"])),
		BaseMin:    lenientDecimal(raw["base_min"]),
		YearsOfExp: lenientDecimal(raw["years_of_exp"]),
	}
	return nil
}

type payLineJSON struct {
	Category Category      `json:"category"`
	Kind     AllowanceKind `json:"kind,omitempty"`
	Label    string        `json:"label"`
	Currency Currency      `json:"currency"`
	Amount   json.Number   `json:"amount"`
}

func (l PayLine) MarshalJSON() ([]byte, error) {
	return json.Marshal(payLineJSON{
		Category: l.Category,
		Kind:     l.Kind,
		Label:    l.Label,
		Currency: l.Currency,
		Amount:   number(l.Amount),
	})
}

// UnmarshalJSON never fails on field content. The kind always comes from the
// category and label; a "kind" field in the payload is ignored.
func (l *PayLine) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*l = PayLine{}
		return nil
	}
	line := NewPayLine(
		Category(lenientString(raw["category"])),
		lenientString(raw["label"]),
		Currency(lenientString(raw["currency"])),
		lenientDecimal(raw["amount"]),
	)
	*l = line
	return nil
}

// PreviewRequest is the calc-preview payload.
type PreviewRequest struct {
	Header            PayHeader
	Lines             []PayLine
	ExperienceRateTRY *decimal.Decimal
}

func (p *PreviewRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Header            json.RawMessage   `json:"header"`
		Lines             []json.RawMessage `json:"lines"`
		ExperienceRateTRY json.RawMessage   `json:"experienceRateTRY"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := PreviewRequest{Lines: make([]PayLine, 0, len(raw.Lines))}
	if len(raw.Header) > 0 {
		_ = out.Header.UnmarshalJSON(raw.Header)
	}
	for _, item := range raw.Lines {
		var line PayLine
		_ = line.UnmarshalJSON(item)
		out.Lines = append(out.Lines, line)
	}
	if trimmed := bytes.TrimSpace(raw.ExperienceRateTRY); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		rate := lenientDecimal(trimmed)
		out.ExperienceRateTRY = &rate
	}
	*p = out
	return nil
}

type recordJSON struct {
	ID                string       `json:"id"`
	EmployeeID        string       `json:"employeeId"`
	Period            string       `json:"period"`
	Header            PayHeader    `json:"header"`
	Lines             []PayLine    `json:"lines"`
	ExperienceRateTRY json.Number  `json:"experienceRateTRY"`
	Totals            TotalsResult `json:"totals"`
	CreatedBy         string       `json:"createdBy"`
	CreatedAt         string       `json:"createdAt"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	lines := r.Lines
	if lines == nil {
		lines = []PayLine{}
	}
	out := recordJSON{
		ID:                r.ID,
		EmployeeID:        r.EmployeeID,
		Period:            r.Period,
		Header:            r.Header,
		Lines:             lines,
		ExperienceRateTRY: number(r.ExperienceRateTRY),
		Totals:            r.Totals,
		CreatedBy:         r.CreatedBy,
	}
	if !r.CreatedAt.IsZero() {
		out.CreatedAt = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	return json.Marshal(out)
}
