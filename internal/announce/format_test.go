package announce

import (
	"strings"
	"testing"
	"time"

	"spawnbot/internal/schedule"
	"spawnbot/internal/storage"
)

func testSnapshot() schedule.Snapshot {
	next := time.Date(2026, time.March, 2, 14, 10, 0, 0, time.UTC)
	return schedule.Snapshot{
		Running:  true,
		Timezone: "Europe/Bucharest",
		Anchor:   "12:10",
		Jobs: []schedule.JobStatus{
			{ID: "temintia_spawn", Name: "Temintia <V5>", Kind: schedule.KindWarning, Every: 2 * time.Hour, Next: next, Fired: 3},
			{ID: "temintia_followup", Name: "Temintia <V5>", Kind: schedule.KindFollowup, Every: 2 * time.Hour, Next: next.Add(5 * time.Minute)},
		},
	}
}

func TestFormatStartupEscapesAndListsWarnings(t *testing.T) {
	t.Parallel()
	out := FormatStartup(testSnapshot())
	if !strings.Contains(out, "Temintia &lt;V5&gt;") {
		t.Fatalf("name not escaped: %q", out)
	}
	if !strings.Contains(out, "12:10") || !strings.Contains(out, "Europe/Bucharest") {
		t.Fatalf("anchor/timezone missing: %q", out)
	}
	if strings.Count(out, "Temintia") != 1 {
		t.Fatalf("followup rows should be omitted: %q", out)
	}
}

func TestFormatStatusShowsCounters(t *testing.T) {
	t.Parallel()
	snap := testSnapshot()
	snap.Jobs[0].Skipped = 1
	snap.Jobs[0].LastErr = "chat <gone>"
	out := FormatStatus(snap)
	if !strings.Contains(out, "trimise: 3") || !strings.Contains(out, "sarite: 1") {
		t.Fatalf("counters missing: %q", out)
	}
	if !strings.Contains(out, "chat &lt;gone&gt;") {
		t.Fatalf("error not escaped: %q", out)
	}
}

func TestFormatNextEmpty(t *testing.T) {
	t.Parallel()
	if out := FormatNext(schedule.Snapshot{}); out != "Niciun spawn programat." {
		t.Fatalf("out = %q", out)
	}
}

func TestFormatHistory(t *testing.T) {
	t.Parallel()
	if out := FormatHistory(nil, time.UTC); out != "Istoric gol." {
		t.Fatalf("out = %q", out)
	}
	items := []storage.Announcement{
		{At: time.Date(2026, time.March, 2, 14, 10, 0, 0, time.UTC), JobID: "a", Kind: "warning", OK: true},
		{At: time.Date(2026, time.March, 2, 12, 10, 0, 0, time.UTC), JobID: "b", Kind: "followup", OK: false, Error: "timeout"},
	}
	out := FormatHistory(items, time.UTC)
	if !strings.Contains(out, "✅") || !strings.Contains(out, "❌") {
		t.Fatalf("markers missing: %q", out)
	}
	if !strings.Contains(out, "timeout") {
		t.Fatalf("error missing: %q", out)
	}
}

func TestFormatEvery(t *testing.T) {
	t.Parallel()
	if got := formatEvery(3 * time.Hour); got != "3h" {
		t.Fatalf("got %q", got)
	}
	if got := formatEvery(90 * time.Minute); got != "1h30m0s" {
		t.Fatalf("got %q", got)
	}
}
