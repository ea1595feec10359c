// Package progress reconciles reading-progress heartbeats from multiple
// devices into one authoritative record per (user, book). The state machine
// is a pure function so it can be exercised without storage; callers are
// responsible for running it under per-record mutual exclusion.
package progress

import (
	"time"

	"leafreader/pkg/domain"
)

// Heartbeat is one periodic report from a reading device.
type Heartbeat struct {
	DeviceID string
	Position int64
}

// Result is what the reconciled heartbeat reports back to the device.
// Synced == false is not an error: the device is stale and must re-anchor
// to Position.
type Result struct {
	Synced      bool
	Position    int64
	ReadingTime int64
	// Credited is the number of seconds this heartbeat added to the
	// record, also rolled into the user's aggregate reading time.
	Credited int64
	Created  bool
}

// Reconcile applies one heartbeat against the previous record (nil when no
// record exists yet) and returns the next record plus the device-facing
// result.
//
// Elapsed time is credited only within a continuous session: heartbeats
// from the device that also sent the previous one. The credit from a single
// gap is clamped to [0, maxInterval] so clock skew and suspend/resume can
// never inflate reading time. A device switch is a session boundary: the
// transitional heartbeat credits zero, and a switching device reporting a
// position that disagrees with the stored one is stale, so the stored
// position wins.
func Reconcile(prev *domain.ReadingProgress, hb Heartbeat, now time.Time, maxInterval time.Duration) (domain.ReadingProgress, Result) {
	if prev == nil {
		next := domain.ReadingProgress{
			Position:     hb.Position,
			ReadingTime:  0,
			LastReadAt:   now,
			LastDeviceID: hb.DeviceID,
		}
		return next, Result{Synced: true, Position: hb.Position, Created: true}
	}

	next := *prev
	res := Result{Synced: true}

	if prev.LastDeviceID == "" {
		// Placeholder row from upload or a lazy first open: no session to
		// credit, the reported position is accepted as-is.
		next.Position = hb.Position
	} else if hb.DeviceID == prev.LastDeviceID {
		elapsed := now.Sub(prev.LastReadAt)
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed > maxInterval {
			elapsed = maxInterval
		}
		res.Credited = int64(elapsed / time.Second)
		next.ReadingTime += res.Credited
		next.Position = hb.Position
	} else if hb.Position != prev.Position {
		// Switching device opened the book before the other device's
		// last write; keep the stored position authoritative.
		res.Synced = false
	}

	next.LastDeviceID = hb.DeviceID
	next.LastReadAt = now
	res.Position = next.Position
	res.ReadingTime = next.ReadingTime
	return next, res
}
