package timeutil

import (
	"fmt"
	"time"
)

// StartOfWeek returns midnight of the most recent weekStart day at or before
// t, in t's location.
func StartOfWeek(t time.Time, weekStart time.Weekday) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	back := (int(t.Weekday()) - int(weekStart) + 7) % 7
	return midnight.AddDate(0, 0, -back)
}

// FormatHMS renders a duration as H:MM:SS.
func FormatHMS(d time.Duration) string {
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// FormatHM renders a duration as H:MM.
func FormatHM(d time.Duration) string {
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/3600, (total/60)%60)
}

// DateLayout maps a profile date-format preference to a Go time layout.
// Unknown preferences fall back to ISO dates.
func DateLayout(pref string) string {
	switch pref {
	case "MM/DD/YYYY":
		return "01/02/2006"
	case "DD/MM/YYYY":
		return "02/01/2006"
	case "MM-DD-YYYY":
		return "01-02-2006"
	case "DD-MM-YYYY":
		return "02-01-2006"
	case "DD.MM.YYYY":
		return "02.01.2006"
	default:
		return "2006-01-02"
	}
}

// TimeLayout maps a profile time-format preference to a Go time layout.
func TimeLayout(pref string) string {
	if pref == "12h" {
		return "3:04 PM"
	}
	return "15:04"
}

// FormatDateTime renders t using the profile's date and time preferences.
// A nil t renders as the empty string.
func FormatDateTime(t *time.Time, datePref, timePref string) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout(datePref) + " " + TimeLayout(timePref))
}

// ParseDateTime parses text written in the profile's date and time
// preferences, interpreting it in loc. Empty text yields a nil time.
func ParseDateTime(text, datePref, timePref string, loc *time.Location) (*time.Time, error) {
	if text == "" {
		return nil, nil
	}
	layout := DateLayout(datePref) + " " + TimeLayout(timePref)
	t, err := time.ParseInLocation(layout, text, loc)
	if err != nil {
		return nil, fmt.Errorf("parse %q as %q: %w", text, layout, err)
	}
	return &t, nil
}
