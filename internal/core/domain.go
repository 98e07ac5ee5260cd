package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultCategory is used when a transaction carries no category name.
const DefaultCategory = "khác"

type (
	// Transaction is one inbound spending or income record. It is forwarded
	// to the analysis collaborator as-is.
	Transaction struct {
		Amount      float64
		Category    string
		Date        time.Time
		Description string
	}

	// transactionJSON is the wire form. The Vietnamese names are the ones
	// older clients still send.
	transactionJSON struct {
		Amount      json.RawMessage `json:"amount,omitempty"`
		SoTien      json.RawMessage `json:"so_tien,omitempty"`
		Category    string          `json:"category,omitempty"`
		DanhMuc     string          `json:"danh_muc,omitempty"`
		Date        string          `json:"date,omitempty"`
		Ngay        string          `json:"ngay,omitempty"`
		Description string          `json:"description,omitempty"`
		MoTa        string          `json:"mo_ta,omitempty"`
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrMissingDate      = errors.New("missing date")
	ErrDescriptionLimit = errors.New("description too long (max 255 characters)")
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate accepts RFC 3339 timestamps, naive ISO timestamps and plain dates.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrMissingDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// UnmarshalJSON accepts amounts as JSON numbers or decimal strings.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var raw transactionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	amountRaw := raw.Amount
	if len(amountRaw) == 0 {
		amountRaw = raw.SoTien
	}
	amount, err := decodeAmount(amountRaw)
	if err != nil {
		return err
	}

	dateStr := firstNonEmpty(raw.Date, raw.Ngay)
	date, err := ParseDate(dateStr)
	if err != nil {
		return err
	}

	*t = Transaction{
		Amount:      amount,
		Category:    firstNonEmpty(raw.Category, raw.DanhMuc),
		Date:        date,
		Description: firstNonEmpty(raw.Description, raw.MoTa),
	}
	return nil
}

// MarshalJSON emits the canonical English field names.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount      float64 `json:"amount"`
		Category    string  `json:"category"`
		Date        string  `json:"date"`
		Description string  `json:"description"`
	}{
		Amount:      t.Amount,
		Category:    t.CategoryName(),
		Date:        t.Date.UTC().Format(time.RFC3339),
		Description: t.Description,
	})
}

// CategoryName returns the category, falling back to DefaultCategory.
func (t Transaction) CategoryName() string {
	if name := strings.TrimSpace(t.Category); name != "" {
		return name
	}
	return DefaultCategory
}

func (t Transaction) Validate() error {
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return ErrInvalidAmount
	}
	if t.Date.IsZero() {
		return ErrMissingDate
	}
	if len(t.Description) > 255 {
		return ErrDescriptionLimit
	}
	return nil
}

func decodeAmount(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, ErrInvalidAmount
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, ErrInvalidAmount
	}
	return ParseAmount(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
