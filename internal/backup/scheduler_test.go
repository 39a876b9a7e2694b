package backup

import (
	"strings"
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{
			name:    "valid daily at 3am",
			expr:    "0 3 * * *",
			wantErr: false,
		},
		{
			name:    "valid every hour",
			expr:    "0 * * * *",
			wantErr: false,
		},
		{
			name:    "valid weekly on sunday",
			expr:    "0 4 * * 0",
			wantErr: false,
		},
		{
			name:    "invalid - too few fields",
			expr:    "0 3 * *",
			wantErr: true,
		},
		{
			name:    "invalid - bad syntax",
			expr:    "invalid",
			wantErr: true,
		},
		{
			name:    "invalid - out of range",
			expr:    "60 3 * * *",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSchedule() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheduleInterval(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want time.Duration
	}{
		{
			name: "daily",
			expr: "0 3 * * *",
			want: 24 * time.Hour,
		},
		{
			name: "hourly",
			expr: "0 * * * *",
			want: time.Hour,
		},
		{
			name: "every 30 minutes",
			expr: "*/30 * * * *",
			want: 30 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScheduleInterval(tt.expr)
			if err != nil {
				t.Fatalf("ScheduleInterval() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ScheduleInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		name        string
		expr        string
		wantErr     bool
		wantWarning bool
	}{
		{
			name:    "daily is fine",
			expr:    "0 3 * * *",
			wantErr: false,
		},
		{
			name:        "every 30 minutes warns",
			expr:        "*/30 * * * *",
			wantErr:     false,
			wantWarning: true,
		},
		{
			name:    "every 5 minutes rejected",
			expr:    "*/5 * * * *",
			wantErr: true,
		},
		{
			name:    "invalid expression rejected",
			expr:    "not-cron",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warning, err := ValidateSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSchedule() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (warning != "") != tt.wantWarning {
				t.Errorf("ValidateSchedule() warning = %q, wantWarning %v", warning, tt.wantWarning)
			}
			if tt.wantWarning && !strings.Contains(warning, "expensive") {
				t.Errorf("ValidateSchedule() warning %q does not mention cost", warning)
			}
		})
	}
}
