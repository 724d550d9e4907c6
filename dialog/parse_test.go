package dialog

import (
	"errors"
	"testing"
	"time"
)

func TestParseDelimitedExamExample(t *testing.T) {
	t.Parallel()

	fields, err := ParseDelimited(
		"Eco abdominal, 28/05/2025, Lab hospital, pólipos vesiculares, Dr. Pinto",
		5, map[int]Validator{1: ValidDate})
	if err != nil {
		t.Fatalf("ParseDelimited() error = %v", err)
	}
	want := []string{"Eco abdominal", "28/05/2025", "Lab hospital", "pólipos vesiculares", "Dr. Pinto"}
	for i, w := range want {
		if fields[i] != w {
			t.Fatalf("fields[%d] = %q, want %q", i, fields[i], w)
		}
	}

	date, err := NormalizeDate(fields[1], time.Now())
	if err != nil {
		t.Fatalf("NormalizeDate() error = %v", err)
	}
	if date != "2025-05-28" {
		t.Fatalf("NormalizeDate() = %q, want %q", date, "2025-05-28")
	}
}

func TestParseDelimitedWrongFieldCount(t *testing.T) {
	t.Parallel()

	cases := []string{
		"Eco abdominal, 28/05/2025, Lab hospital, pólipos",
		"Eco abdominal, 28/05/2025, Lab hospital, pólipos, Dr. Pinto, extra",
	}
	for _, text := range cases {
		if _, err := ParseDelimited(text, 5, nil); err == nil {
			t.Fatalf("ParseDelimited(%q) accepted wrong field count", text)
		}
	}
}

func TestParseDelimitedEmptyField(t *testing.T) {
	t.Parallel()

	_, err := ParseDelimited("a, , c", 3, nil)
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("ParseDelimited() error = %v, want *Rejection", err)
	}
}

func TestValidDate(t *testing.T) {
	t.Parallel()

	valid := []string{"01/01/1900", "31/12/2100", "28/05/2025", "hoy", "HOY", "today"}
	for _, s := range valid {
		if err := ValidDate(s); err != nil {
			t.Fatalf("ValidDate(%q) = %v, want nil", s, err)
		}
	}

	invalid := []string{"", "28-05-2025", "32/05/2025", "28/13/2025", "28/05/1899", "28/05/2101", "ayer", "28/05"}
	for _, s := range invalid {
		if err := ValidDate(s); err == nil {
			t.Fatalf("ValidDate(%q) = nil, want error", s)
		}
	}
}

func TestValidTime(t *testing.T) {
	t.Parallel()

	valid := []string{"00:00", "09:30", "23:59"}
	for _, s := range valid {
		if err := ValidTime(s); err != nil {
			t.Fatalf("ValidTime(%q) = %v, want nil", s, err)
		}
	}

	invalid := []string{"", "24:00", "12:60", "9h30", "12", "12:3a"}
	for _, s := range invalid {
		if err := ValidTime(s); err == nil {
			t.Fatalf("ValidTime(%q) = nil, want error", s)
		}
	}
}

func TestNormalizeDateRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []string{"01/01/1900", "09/04/2024", "28/05/2025", "31/12/2100"}
	for _, in := range cases {
		normalized, err := NormalizeDate(in, time.Now())
		if err != nil {
			t.Fatalf("NormalizeDate(%q) error = %v", in, err)
		}
		back, err := FormatDate(normalized)
		if err != nil {
			t.Fatalf("FormatDate(%q) error = %v", normalized, err)
		}
		if back != in {
			t.Fatalf("round trip of %q = %q", in, back)
		}
	}
}

func TestNormalizeDateTodayLiteral(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	for _, s := range []string{"hoy", "today", " Hoy "} {
		got, err := NormalizeDate(s, now)
		if err != nil {
			t.Fatalf("NormalizeDate(%q) error = %v", s, err)
		}
		if got != "2026-03-15" {
			t.Fatalf("NormalizeDate(%q) = %q, want %q", s, got, "2026-03-15")
		}
	}
}

func TestValidAge(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"1", "34", "120"} {
		if err := ValidAge(s); err != nil {
			t.Fatalf("ValidAge(%q) = %v, want nil", s, err)
		}
	}
	for _, s := range []string{"0", "121", "-3", "treinta", ""} {
		if err := ValidAge(s); err == nil {
			t.Fatalf("ValidAge(%q) = nil, want error", s)
		}
	}
}

func TestValidEmail(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"ana@example.com", "a.b@c.cl"} {
		if err := ValidEmail(s); err != nil {
			t.Fatalf("ValidEmail(%q) = %v, want nil", s, err)
		}
	}
	for _, s := range []string{"", "ana", "@example.com", "ana@localhost"} {
		if err := ValidEmail(s); err == nil {
			t.Fatalf("ValidEmail(%q) = nil, want error", s)
		}
	}
}
