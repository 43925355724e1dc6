package cache

import (
	"testing"
	"time"
)

func TestDate(t *testing.T) {
	d, err := ParseDate("2025-03-15")
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	if d != (Date{Year: 2025, Month: time.March, Day: 15}) {
		t.Errorf("ParseDate() = %+v", d)
	}
	if got := d.String(); got != "2025-03-15" {
		t.Errorf("String() = %q", got)
	}
	if _, err := ParseDate("15/03/2025"); err == nil {
		t.Error("ParseDate should reject non ISO-8601 input")
	}

	midnight := d.In(time.UTC)
	if midnight.Hour() != 0 || midnight.Day() != 15 {
		t.Errorf("In() = %v", midnight)
	}
	if DateOf(midnight) != d {
		t.Errorf("DateOf(In()) = %+v, want %+v", DateOf(midnight), d)
	}
}

func TestTimeOfDay(t *testing.T) {
	tests := []struct {
		in   string
		want TimeOfDay
	}{
		{in: "09:30:00", want: TimeOfDay{Hour: 9, Minute: 30}},
		{in: "23:59:59.5", want: TimeOfDay{Hour: 23, Minute: 59, Second: 59, Nanosecond: 500000000}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if err != nil {
				t.Fatalf("ParseTimeOfDay() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseTimeOfDay() = %+v, want %+v", got, tt.want)
			}
			round, err := ParseTimeOfDay(got.String())
			if err != nil || round != got {
				t.Errorf("String() does not round trip: %q -> %+v, %v", got.String(), round, err)
			}
		})
	}

	if _, err := ParseTimeOfDay("25:00:00"); err == nil {
		t.Error("ParseTimeOfDay should reject out-of-range hours")
	}
}
