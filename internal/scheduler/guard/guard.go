package guard

import (
	"errors"
	"time"

	postingdomain "github.com/smallbiznis/hera/internal/posting/domain"
)

var (
	ErrDayOpen     = errors.New("business_day_open")
	ErrMissingZone = errors.New("business_day_missing_zone")
)

// EnsureDayClosed rejects a business day that has not yet ended in loc.
func EnsureDayClosed(day time.Time, loc *time.Location, now time.Time) error {
	if loc == nil {
		return ErrMissingZone
	}
	_, end := postingdomain.DayWindow(day, loc)
	if now.Before(end) {
		return ErrDayOpen
	}
	return nil
}
