// Package schedule owns the recurring spawn timetable: fixed-interval grids
// anchored to a shared daily time-of-day in one reference timezone.
//
// Each registered job resolves its next fire time as the earliest grid point
// strictly after "now"; the grid for an interval of N hours is the set of
// instants anchor + k*N hours (k any integer), optionally shifted by a fixed
// offset for follow-up announcements. A single worker goroutine sleeps until
// the earliest pending fire time and hands due payloads to a Dispatcher
// asynchronously, so one slow delivery never delays the rest of the
// timetable.
//
// Misfire policy: a job whose previous delivery is still in flight skips the
// occurrence entirely; a job that wakes up later than the misfire grace with
// several occurrences due fires once for the most recent missed grid point.
// In every case the next fire time lands back on the grid, never drifting by
// processing delays.
package schedule
