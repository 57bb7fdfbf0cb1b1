package charge

import (
	"fmt"

	"github.com/neilk/octowatch/internal/tariff"
)

// Band is a configured clock-time window within which the cheapest slots are
// selected for a deferrable load.
type Band string

const (
	BandNight   Band = "night"
	BandDay     Band = "day"
	BandEvening Band = "evening"
)

// bandSpec pins down a band's behaviour: which period-start clock times
// belong to it, the hour at which the delivered-hours counter resets for a
// new cycle, and the blackout window during which the cached preferred set
// is stale and must not be trusted. All hours are UTC, matching the
// UTC-anchored period identifiers published upstream.
type bandSpec struct {
	firstSlot int // half-hour slot index of the first band period (0 = 00:00)
	lastSlot  int // inclusive
	resetHour int
	blackout  func(hour int) bool
}

var bands = map[Band]bandSpec{
	BandNight: {
		firstSlot: 0, lastSlot: 15, // 00:00-07:30
		resetHour: 19,
		blackout:  func(h int) bool { return h >= 8 && h < 18 },
	},
	BandDay: {
		firstSlot: 16, lastSlot: 31, // 08:00-15:30
		resetHour: 23,
		blackout:  func(h int) bool { return h >= 16 && h < 18 },
	},
	BandEvening: {
		firstSlot: 39, lastSlot: 47, // 19:30-23:30
		resetHour: 19,
		blackout:  func(h int) bool { return h < 17 },
	},
}

// Valid reports whether b names a known band.
func (b Band) Valid() bool {
	_, ok := bands[b]
	return ok
}

func (b Band) spec() bandSpec { return bands[b] }

// contains reports whether the period with the given UTC start belongs to
// the band's clock window.
func (s bandSpec) contains(p tariff.RatePeriod) bool {
	utc := p.Start.UTC()
	slot := utc.Hour()*2 + utc.Minute()/30
	return slot >= s.firstSlot && slot <= s.lastSlot
}

// ParseBand validates a band name from configuration.
func ParseBand(s string) (Band, error) {
	b := Band(s)
	if !b.Valid() {
		return "", &tariff.ConfigurationError{
			Field:  "band",
			Reason: fmt.Sprintf("unknown band %q (want night, day or evening)", s),
		}
	}
	return b, nil
}
