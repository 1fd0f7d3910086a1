// Package period maps native period keys from either data source onto the
// canonical key space used for joining. The two sources agree on daily and
// monthly buckets but anchor their weeks differently, which this package
// reconciles with a fixed, stateless transform.
package period

import (
	"fmt"
	"time"

	"costlens/internal/core"
)

// Calendar tags the week-anchoring convention a period key was produced under.
type Calendar string

const (
	// CalendarISO anchors weeks on Monday per ISO 8601. This is the canonical
	// convention; normalizing an ISO week key is a no-op up to week-start
	// rounding.
	CalendarISO Calendar = "iso"

	// CalendarLegacy anchors weeks on Saturday, two days before the ISO
	// Monday of the same reporting week. The savings ledger predates the ISO
	// convention and still buckets weeks this way.
	CalendarLegacy Calendar = "legacy"
)

// legacyWeekOffsetDays shifts a legacy Saturday anchor onto the ISO week that
// the legacy reporting week is attributed to.
const legacyWeekOffsetDays = 2

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// Normalize converts a native period key into the canonical key for its
// granularity: YYYY-MM-DD for daily, the ISO week-start date (Monday) for
// weekly, YYYY-MM for monthly. Daily and monthly keys pass through unchanged
// after validation; weekly keys are shifted by the legacy offset when tagged
// CalendarLegacy and then rounded to their ISO week start.
//
// A malformed key yields a DateParse error. Callers must skip the affected
// record and continue; one bad key never aborts a whole merge.
func Normalize(key string, g core.Granularity, cal Calendar) (string, error) {
	switch g {
	case core.GranularityDaily:
		if _, err := time.Parse(dayLayout, key); err != nil {
			return "", core.NewDateParseError(key, g, err)
		}
		return key, nil

	case core.GranularityMonthly:
		if _, err := time.Parse(monthLayout, key); err != nil {
			return "", core.NewDateParseError(key, g, err)
		}
		return key, nil

	case core.GranularityWeekly:
		anchor, err := time.Parse(dayLayout, key)
		if err != nil {
			return "", core.NewDateParseError(key, g, err)
		}
		if cal == CalendarLegacy {
			anchor = anchor.AddDate(0, 0, legacyWeekOffsetDays)
		}
		return WeekStart(anchor).Format(dayLayout), nil

	default:
		return "", core.NewValidationError(fmt.Sprintf("unsupported granularity %q", g), nil)
	}
}

// WeekStart returns Monday 00:00 UTC of t's ISO week.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	// time.Weekday counts Sunday=0..Saturday=6; ISO weeks start on Monday.
	offset := (int(t.Weekday()) + 6) % 7
	d := t.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}
