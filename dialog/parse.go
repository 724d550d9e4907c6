package dialog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rejection is a validation failure carrying a user-facing reason. It never
// advances a flow; the user is re-prompted with the reason.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

func rejectf(format string, args ...any) error {
	return &Rejection{Reason: fmt.Sprintf(format, args...)}
}

// Validator checks one parsed field.
type Validator func(field string) error

// ParseDelimited splits comma-delimited text into exactly want fields. Every
// field is trimmed and must be non-empty; validators are applied by field
// index. Failures return *Rejection.
func ParseDelimited(text string, want int, validators map[int]Validator) ([]string, error) {
	parts := strings.Split(text, ",")
	if len(parts) < want {
		return nil, rejectf("faltan datos: recibí %d de %d campos", len(parts), want)
	}
	if len(parts) > want {
		return nil, rejectf("demasiados datos: recibí %d de %d campos", len(parts), want)
	}
	fields := make([]string, want)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, rejectf("el campo %d está vacío", i+1)
		}
		fields[i] = p
	}
	for i, validate := range validators {
		if err := validate(fields[i]); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// ValidDate accepts DD/MM/YYYY with day 1-31, month 1-12, year 1900-2100,
// plus the literals "hoy" and "today".
func ValidDate(s string) error {
	if isTodayLiteral(s) {
		return nil
	}
	day, month, year, ok := splitDate(s)
	if !ok {
		return rejectf("fecha inválida %q: usa el formato DD/MM/AAAA", s)
	}
	if day < 1 || day > 31 || month < 1 || month > 12 || year < 1900 || year > 2100 {
		return rejectf("fecha inválida %q: usa el formato DD/MM/AAAA", s)
	}
	return nil
}

// ValidTime accepts HH:MM with hour 0-23 and minute 0-59.
func ValidTime(s string) error {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return rejectf("hora inválida %q: usa el formato HH:MM", s)
	}
	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return rejectf("hora inválida %q: usa el formato HH:MM", s)
	}
	return nil
}

// NormalizeDate converts a valid DD/MM/YYYY date (or a today literal) to
// YYYY-MM-DD.
func NormalizeDate(s string, now time.Time) (string, error) {
	if isTodayLiteral(s) {
		return now.Format("2006-01-02"), nil
	}
	if err := ValidDate(s); err != nil {
		return "", err
	}
	day, month, year, _ := splitDate(s)
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), nil
}

// FormatDate renders a normalized YYYY-MM-DD date back as DD/MM/YYYY.
func FormatDate(s string) (string, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return "", rejectf("fecha inválida %q", s)
	}
	year, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	day, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return "", rejectf("fecha inválida %q", s)
	}
	return fmt.Sprintf("%02d/%02d/%04d", day, month, year), nil
}

// ValidAge accepts a whole number of years in [1, 120].
func ValidAge(s string) error {
	age, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || age < 1 || age > 120 {
		return rejectf("edad inválida %q: escribe un número entre 1 y 120", s)
	}
	return nil
}

// ValidEmail requires a plausible address; real verification belongs to the
// dashboard.
func ValidEmail(s string) error {
	s = strings.TrimSpace(s)
	at := strings.Index(s, "@")
	if at < 1 || !strings.Contains(s[at+1:], ".") {
		return rejectf("correo inválido %q", s)
	}
	return nil
}

func isTodayLiteral(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hoy", "today":
		return true
	}
	return false
}

func splitDate(s string) (day, month, year int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	day, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return day, month, year, true
}
