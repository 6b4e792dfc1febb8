package validation

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRequired(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"", true},
		{"   ", true},
		{"x", false},
	}
	for _, tc := range tests {
		err := Required("f", tc.value)
		if (err != nil) != tc.wantErr {
			t.Errorf("Required(%q) error = %v, wantErr %v", tc.value, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, ErrRequired) {
			t.Errorf("expected ErrRequired, got %v", err)
		}
	}
}

func TestRegionName(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr error
	}{
		{"simple", "eu-west", nil},
		{"digits", "us-east-1", nil},
		{"single char", "a", nil},
		{"empty", "", ErrRequired},
		{"uppercase", "EU-West", ErrInvalidFormat},
		{"leading dash", "-eu", ErrInvalidFormat},
		{"trailing dash", "eu-", ErrInvalidFormat},
		{"underscore", "eu_west", ErrInvalidFormat},
		{"too long", strings.Repeat("a", MaxRegionLength+1), ErrTooLong},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := RegionName("region", tc.value)
			if tc.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRegions(t *testing.T) {
	if err := Regions("regions", []string{"a", "b"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Regions("regions", nil); !errors.Is(err, ErrRequired) {
		t.Errorf("expected ErrRequired, got %v", err)
	}
	if err := Regions("regions", []string{"a", "a"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	err := Regions("regions", []string{"a", "B"})
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
	if !strings.Contains(err.Error(), "regions[1]") {
		t.Errorf("error should name the index, got %q", err.Error())
	}
}

func TestRequesterID(t *testing.T) {
	valid := []string{"user-1", "svc:billing", "alice@example.org", "team/42"}
	for _, v := range valid {
		if err := RequesterID("requester_id", v); err != nil {
			t.Errorf("RequesterID(%q) unexpected error: %v", v, err)
		}
	}
	invalid := []string{"", "has space", "tab\there", strings.Repeat("x", MaxRequesterIDLength+1)}
	for _, v := range invalid {
		if err := RequesterID("requester_id", v); err == nil {
			t.Errorf("RequesterID(%q) expected error", v)
		}
	}
}

func TestPoolBounds(t *testing.T) {
	tests := []struct {
		min, max int
		wantErr  bool
	}{
		{0, 1, false},
		{2, 10, false},
		{10, 10, false},
		{-1, 10, true},
		{0, 0, true},
		{5, 3, true},
		{0, MaxConnectionsLimit + 1, true},
	}
	for _, tc := range tests {
		err := PoolBounds("min", tc.min, "max", tc.max)
		if (err != nil) != tc.wantErr {
			t.Errorf("PoolBounds(%d, %d) error = %v, wantErr %v", tc.min, tc.max, err, tc.wantErr)
		}
	}
}

func TestPercentAndDuration(t *testing.T) {
	if Percent("p", 95) != nil || Percent("p", 0) != nil || Percent("p", 100) != nil {
		t.Error("boundary percentages should be valid")
	}
	if Percent("p", -0.1) == nil || Percent("p", 100.1) == nil {
		t.Error("out of range percentages should fail")
	}
	if PositiveDuration("d", time.Second) != nil {
		t.Error("positive duration should be valid")
	}
	if !errors.Is(PositiveDuration("d", 0), ErrOutOfRange) {
		t.Error("zero duration should be out of range")
	}
}

func TestHostPort(t *testing.T) {
	if err := HostPort("listen", "127.0.0.1:8080"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := HostPort("listen", ":8080"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := HostPort("listen", "localhost"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestAcquireParams(t *testing.T) {
	if err := AcquireParams("user-1", ""); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := AcquireParams("user-1", "eu-west"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := AcquireParams("", "eu-west"); !errors.Is(err, ErrRequired) {
		t.Errorf("expected ErrRequired, got %v", err)
	}
	if err := AcquireParams("user-1", "EU"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestAll(t *testing.T) {
	calls := 0
	err := All(
		func() error { calls++; return nil },
		func() error { calls++; return Positive("n", 0) },
		func() error { calls++; return nil },
	)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("All should stop at first error, ran %d", calls)
	}
}

func TestErrors(t *testing.T) {
	var errs Errors
	if errs.HasErrors() || errs.Err() != nil {
		t.Fatal("empty collection should have no errors")
	}

	errs.Add(nil)
	errs.Add(Positive("a", 0))
	if errs.Error() != "a: must be positive" {
		t.Errorf("unexpected single message %q", errs.Error())
	}

	errs.Add(RegionName("b", ""))
	if !strings.HasPrefix(errs.Error(), "multiple validation errors: ") {
		t.Errorf("unexpected message %q", errs.Error())
	}
	if !errors.Is(errs.Err(), ErrRequired) {
		t.Error("errors.Is should see through the collection")
	}
}

func TestResult(t *testing.T) {
	r := NewResult("", "bad", ErrInvalidFormat)
	if r.Error() != "bad" {
		t.Errorf("unexpected message %q", r.Error())
	}
	if !errors.Is(r, ErrInvalidFormat) {
		t.Error("Result should unwrap")
	}
}
