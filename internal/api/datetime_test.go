package api

import (
	"testing"
	"time"
)

func TestToUTCInstant(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	berlin := time.FixedZone("CEST", 2*3600)

	tests := []struct {
		name  string
		value string
		loc   *time.Location
		want  string
	}{
		{
			name:  "IST wall clock to UTC",
			value: "2025-06-01T09:00",
			loc:   kolkata,
			want:  "2025-06-01T03:30:00.000Z",
		},
		{
			name:  "with seconds",
			value: "2025-06-01T09:00:30",
			loc:   kolkata,
			want:  "2025-06-01T03:30:30.000Z",
		},
		{
			name:  "CEST to UTC",
			value: "2025-12-24T18:00",
			loc:   berlin,
			want:  "2025-12-24T16:00:00.000Z",
		},
		{
			name:  "UTC passthrough",
			value: "2025-06-01T09:00",
			loc:   time.UTC,
			want:  "2025-06-01T09:00:00.000Z",
		},
		{
			name:  "already an instant",
			value: "2025-06-01T09:00:00+05:30",
			loc:   time.UTC,
			want:  "2025-06-01T03:30:00.000Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToUTCInstant(tt.value, tt.loc)
			if err != nil {
				t.Fatalf("ToUTCInstant() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ToUTCInstant() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToUTCInstantRejectsGarbage(t *testing.T) {
	for _, v := range []string{"", "tomorrow", "2025-13-01T00:00"} {
		if _, err := ToUTCInstant(v, time.UTC); err == nil {
			t.Errorf("ToUTCInstant(%q) should fail", v)
		}
	}
}

func TestTruncateForEdit(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-06-01T03:30:00.000Z", "2025-06-01T03:30:00"},
		{"2025-06-01T03:30:00Z", "2025-06-01T03:30:00"},
		{"2025-06-01T03:30:00", "2025-06-01T03:30:00"},
	}
	for _, tt := range tests {
		if got := TruncateForEdit(tt.in); got != tt.want {
			t.Errorf("TruncateForEdit(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecipientExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	past := EmailRecipient{TriggerDate: "2025-06-01T09:00:00.000Z"}
	future := EmailRecipient{TriggerDate: "2025-06-01T15:00:00.000Z"}
	invalid := EmailRecipient{TriggerDate: "garbage"}

	if !past.Expired(now) {
		t.Error("past trigger date not reported expired")
	}
	if future.Expired(now) {
		t.Error("future trigger date reported expired")
	}
	if invalid.Expired(now) {
		t.Error("unparseable trigger date reported expired")
	}
}
