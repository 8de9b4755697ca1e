package playlist

import (
	"testing"
	"time"
)

func TestMonthFor(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{
			name: "mid month stays in month",
			now:  time.Date(2026, time.August, 20, 12, 0, 0, 0, time.UTC),
			want: "2026-08",
		},
		{
			name: "fifteenth stays in month",
			now:  time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC),
			want: "2026-08",
		},
		{
			name: "before the fifteenth rolls back a month",
			now:  time.Date(2026, time.August, 1, 0, 1, 0, 0, time.UTC),
			want: "2026-07",
		},
		{
			name: "january rolls back across the year boundary",
			now:  time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC),
			want: "2025-12",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MonthFor(tt.now).Format("2006-01")
			if got != tt.want {
				t.Errorf("MonthFor(%v) = %s, want %s", tt.now, got, tt.want)
			}
		})
	}
}

func TestTitleAndDescription(t *testing.T) {
	month := time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	generated := time.Date(2026, time.August, 1, 0, 5, 0, 0, time.UTC)

	if got := Title(month); got != "2026-07 (Jul) BOTM" {
		t.Errorf("Title() = %q", got)
	}

	want := "Bangers of the month for July 2026, (generated on 2026-08-01)"
	if got := Description(month, generated); got != want {
		t.Errorf("Description() = %q, want %q", got, want)
	}
}
