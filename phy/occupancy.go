package phy

import (
	"math"
	"time"

	"github.com/signalsfoundry/phytrack/model"
)

// ThresholdPrecisionDbm is the quantum applied to energy-detection thresholds
// before they are used as map keys. Two thresholds address the same occupancy
// entry iff they agree after rounding to this precision.
const ThresholdPrecisionDbm = 0.01

// occupancyKey addresses one busy-interval entry: a frequency band paired
// with a fixed-point (centi-dBm) detection threshold.
type occupancyKey struct {
	band     model.Band
	thrCenti int64
}

func newOccupancyKey(band model.Band, thresholdDbm float64) occupancyKey {
	return occupancyKey{band: band, thrCenti: quantizeThreshold(thresholdDbm)}
}

func quantizeThreshold(dbm float64) int64 {
	return int64(math.Round(dbm / ThresholdPrecisionDbm))
}

// busyInterval records the span during which a band was sensed busy.
type busyInterval struct {
	start time.Time
	end   time.Time
}

// bandOccupancyTable maps (band, threshold) keys to their most recent busy
// interval. Keys are created lazily on first detection and overwritten, never
// appended; entries persist for the tracker's lifetime. The number of keys is
// bounded by the small, fixed set of bands a device monitors.
type bandOccupancyTable map[occupancyKey]busyInterval

// busyEnd returns the recorded busy-end time for key, if any.
func (tab bandOccupancyTable) busyEnd(key occupancyKey) (time.Time, bool) {
	iv, ok := tab[key]
	return iv.end, ok
}

// extend upserts the entry for key to end at newEnd, but never shrinks an
// already-recorded busy end: detections for overlapping sub-bands can arrive
// in any order and must accumulate the maximum observed occupancy. If the
// existing interval is still open at now, its start is preserved so the busy
// span stays contiguous. Reports whether the entry changed.
func (tab bandOccupancyTable) extend(key occupancyKey, now, newEnd time.Time) bool {
	cur, ok := tab[key]
	if ok && !newEnd.After(cur.end) {
		return false
	}
	start := now
	if ok && cur.end.After(now) {
		start = cur.start
	}
	tab[key] = busyInterval{start: start, end: newEnd}
	return true
}

// truncateOpen closes every interval still open at now. Used on channel
// switch: energy observed on the old channel means nothing after retuning.
func (tab bandOccupancyTable) truncateOpen(now time.Time) {
	for key, iv := range tab {
		if iv.end.After(now) {
			iv.end = now
			if iv.start.After(now) {
				iv.start = now
			}
			tab[key] = iv
		}
	}
}
