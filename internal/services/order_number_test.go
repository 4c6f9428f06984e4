package services

import (
	"bytes"
	"regexp"
	"testing"
	"time"
)

func TestOrderNumberShape(t *testing.T) {
	gen := NewOrderNumberGenerator(bytes.NewReader([]byte{0, 1, 2, 3, 4}))
	at := time.Date(2026, time.March, 14, 15, 4, 5, 0, time.UTC)

	number, err := gen.Generate(at, "usr42")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got, want := number[:15], "2026031415usr42"; got != want {
		t.Fatalf("expected prefix %q, got %q", want, got)
	}
	suffix := number[15:]
	if len(suffix) != 5 {
		t.Fatalf("expected 5-character suffix, got %q", suffix)
	}
	if !regexp.MustCompile(`^[0-9A-Z]{5}$`).MatchString(suffix) {
		t.Fatalf("suffix %q outside base-36 alphabet", suffix)
	}
}

func TestOrderNumberUsesUTCHour(t *testing.T) {
	gen := NewOrderNumberGenerator(bytes.NewReader([]byte{10, 11, 12, 13, 14}))
	loc := time.FixedZone("UTC+9", 9*60*60)
	at := time.Date(2026, time.January, 1, 3, 30, 0, 0, loc)

	number, err := gen.Generate(at, "u1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	// 03:30 UTC+9 is 18:30 the previous day in UTC.
	if got, want := number[:10], "2025123118"; got != want {
		t.Fatalf("expected hour prefix %q, got %q", want, got)
	}
}

func TestOrderNumberTrimsUserID(t *testing.T) {
	gen := NewOrderNumberGenerator(bytes.NewReader([]byte{1, 2, 3, 4, 5}))
	at := time.Date(2026, time.March, 14, 15, 0, 0, 0, time.UTC)

	number, err := gen.Generate(at, " usr_1 ")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got, want := number[:15], "2026031415usr_1"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
