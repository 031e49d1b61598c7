package reports

import (
	"errors"
	"strings"
	"time"

	"building-monitor/internal/form"
)

// Query is the parameters of a historical report request.
type Query struct {
	EnvironmentID string
	From          time.Time
	To            time.Time
}

const (
	// MessageRequired is shown when a query field is missing.
	MessageRequired = "¡Todos los campos son obligatorios!"
	// MessageInvertedRange is shown when the range starts after it ends.
	MessageInvertedRange = "¡La fecha de inicio no puede ser mayor a la fecha final!"
	// MessageInvalidDate is shown when a date cannot be parsed.
	MessageInvalidDate = "¡Formato de fecha inválido!"
)

// QueryTimeLayout is the wire format of fromDate/toDate.
const QueryTimeLayout = "2006-01-02 15:04:05"

var acceptedLayouts = []string{
	time.RFC3339,
	QueryTimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ValidationError is a user-facing query validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "reports: invalid query: " + e.Message
}

// ErrValidation matches any ValidationError via errors.Is.
var ErrValidation = errors.New("reports: invalid query")

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validate checks required fields and range ordering.
func (q Query) Validate() error {
	if strings.TrimSpace(q.EnvironmentID) == "" || q.From.IsZero() || q.To.IsZero() {
		return &ValidationError{Message: MessageRequired}
	}
	if q.From.After(q.To) {
		return &ValidationError{Message: MessageInvertedRange}
	}
	return nil
}

// NewQueryForm returns the form backing the report query inputs.
func NewQueryForm() *form.Form {
	return form.New(
		map[string]any{"environment": "", "fromDate": "", "toDate": ""},
		map[string]form.Rule{
			"environment": form.Required(MessageRequired),
			"fromDate":    form.Required(MessageRequired),
			"toDate":      form.Required(MessageRequired),
		},
	)
}

// QueryFromForm builds a validated Query from form input.
func QueryFromForm(f *form.Form, loc *time.Location) (Query, error) {
	if f == nil || !f.Valid() {
		return Query{}, &ValidationError{Message: MessageRequired}
	}
	from, err := ParseQueryTime(f.String("fromDate"), loc)
	if err != nil {
		return Query{}, &ValidationError{Message: MessageInvalidDate}
	}
	to, err := ParseQueryTime(f.String("toDate"), loc)
	if err != nil {
		return Query{}, &ValidationError{Message: MessageInvalidDate}
	}
	q := Query{EnvironmentID: f.String("environment"), From: from, To: to}
	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

// ParseQueryTime parses the date formats accepted from the SPA.
func ParseQueryTime(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("reports: empty time")
	}
	var lastErr error
	for _, layout := range acceptedLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
