package iso8583

import (
	"fmt"
	"time"
)

// IsoTime formats DE12 (hhmmss).
func IsoTime(t time.Time) string { return t.Format("150405") }

// IsoDate formats DE13 (MMDD).
func IsoDate(t time.Time) string { return t.Format("0102") }

// IsoDateTime formats DE7 (MMDDhhmmss).
func IsoDateTime(t time.Time) string { return t.Format("0102150405") }

// HostDatetime rebuilds a timestamp from DE13 (MMDD) and DE12 (hhmmss).
// The message carries no year: the year of now is used, stepping back
// one year when that would put the host time more than a day ahead or
// when the date does not exist in the current year.
func HostDatetime(date, clock string, now time.Time) (time.Time, error) {
	t, err := inYear(now.Year(), date, clock, now.Location())
	if err == nil && !t.After(now.Add(24*time.Hour)) {
		return t, nil
	}
	prev, perr := inYear(now.Year()-1, date, clock, now.Location())
	if perr != nil {
		if err == nil {
			err = perr
		}
		return time.Time{}, fmt.Errorf("host datetime %q %q: %w", date, clock, err)
	}
	return prev, nil
}

func inYear(year int, date, clock string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("20060102150405", fmt.Sprintf("%04d", year)+date+clock, loc)
}
