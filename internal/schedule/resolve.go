package schedule

import "time"

// FirstFire resolves the earliest grid point strictly after now for the
// interval grid anchored at the daily anchor time in loc.
//
// The candidate is built with time.Date, so day/month/year rollover is
// calendar arithmetic rather than manual hour math. When now sits exactly on
// a grid point the next one is returned; "strictly after" keeps a job from
// firing the same occurrence twice.
func FirstFire(a Anchor, every time.Duration, now time.Time, loc *time.Location) time.Time {
	n := now.In(loc)
	cand := time.Date(n.Year(), n.Month(), n.Day(), a.Hour, a.Minute, 0, 0, loc)
	if cand.After(n) {
		return cand
	}
	// Integer duration division floors, so k lands on the first grid point
	// past now even when now is exactly on the grid.
	k := int64(n.Sub(cand)/every) + 1
	return cand.Add(time.Duration(k) * every)
}
