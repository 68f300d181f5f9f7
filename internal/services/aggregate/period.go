package aggregate

import (
	"errors"
	"fmt"
	"time"

	"github.com/j-veylop/spendlens/internal/models"
)

var (
	// ErrInvalidSelection marks a custom period without both bounds.
	ErrInvalidSelection = errors.New("custom period requires both from and to")
	// ErrUnknownPeriod marks an unrecognized period name.
	ErrUnknownPeriod = errors.New("unknown period")
)

// Resolve turns a selection's period into a concrete inclusive day range.
func Resolve(sel models.Selection, asOf time.Time) (models.DateRange, error) {
	today := startOfDay(asOf)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)

	switch sel.Period {
	case models.PeriodMTD:
		return models.DateRange{From: monthStart, To: today}, nil
	case models.PeriodPrevMonth:
		from := monthStart.AddDate(0, -1, 0)
		return models.DateRange{From: from, To: monthStart.AddDate(0, 0, -1)}, nil
	case models.Period6M:
		return models.DateRange{From: monthStart.AddDate(0, -5, 0), To: today}, nil
	case models.Period12M:
		return models.DateRange{From: monthStart.AddDate(0, -11, 0), To: today}, nil
	case models.PeriodCustom:
		if sel.From == nil || sel.To == nil {
			return models.DateRange{}, ErrInvalidSelection
		}
		from, to := startOfDay(*sel.From), startOfDay(*sel.To)
		if to.Before(from) {
			return models.DateRange{}, fmt.Errorf("%w: to %s is before from %s",
				ErrInvalidSelection, to.Format(models.DayLayout), from.Format(models.DayLayout))
		}
		return models.DateRange{From: from, To: to}, nil
	}
	return models.DateRange{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, sel.Period)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
