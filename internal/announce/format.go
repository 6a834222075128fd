package announce

import (
	"fmt"
	"html"
	"strings"
	"time"

	"spawnbot/internal/schedule"
	"spawnbot/internal/storage"
)

const timeLayout = "02.01 15:04"

// FormatStartup builds the post-start timetable summary.
func FormatStartup(snap schedule.Snapshot) string {
	var b strings.Builder
	b.WriteString("📢 <b>Spawn tracker activat!</b>\n")
	fmt.Fprintf(&b, "Ancora: %s (%s)\n", snap.Anchor, snap.Timezone)
	for _, j := range snap.Jobs {
		if j.Kind != schedule.KindWarning {
			continue
		}
		fmt.Fprintf(&b, "• %s la fiecare %s, urmatorul: <b>%s</b>\n",
			html.EscapeString(j.Name), formatEvery(j.Every), j.Next.Format(timeLayout))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatStatus answers the /status command.
func FormatStatus(snap schedule.Snapshot) string {
	var b strings.Builder
	if snap.Running {
		b.WriteString("✅ <b>Spawn tracker ruleaza</b>\n")
	} else {
		b.WriteString("⛔ <b>Spawn tracker oprit</b>\n")
	}
	fmt.Fprintf(&b, "Ancora: %s (%s)\n", snap.Anchor, snap.Timezone)
	for _, j := range snap.Jobs {
		line := fmt.Sprintf("• <code>%s</code> [%s] urmatorul: %s, trimise: %d",
			html.EscapeString(j.ID), j.Kind, j.Next.Format(timeLayout), j.Fired)
		if j.Skipped > 0 {
			line += fmt.Sprintf(", sarite: %d", j.Skipped)
		}
		if j.Coalesced > 0 {
			line += fmt.Sprintf(", comasate: %d", j.Coalesced)
		}
		if j.LastErr != "" {
			line += fmt.Sprintf("\n  ⚠️ %s", html.EscapeString(j.LastErr))
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatNext answers the /next command: upcoming warnings only, soonest first.
func FormatNext(snap schedule.Snapshot) string {
	var b strings.Builder
	b.WriteString("⏰ <b>Urmatoarele spawn-uri</b>\n")
	n := 0
	for _, j := range snap.Jobs {
		if j.Kind != schedule.KindWarning {
			continue
		}
		fmt.Fprintf(&b, "• %s: <b>%s</b>\n", html.EscapeString(j.Name), j.Next.Format(timeLayout))
		n++
	}
	if n == 0 {
		return "Niciun spawn programat."
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatHistory answers the /history command. Entries arrive newest first.
func FormatHistory(items []storage.Announcement, loc *time.Location) string {
	if len(items) == 0 {
		return "Istoric gol."
	}
	var b strings.Builder
	b.WriteString("🗒 <b>Ultimele anunturi</b>\n")
	for _, a := range items {
		mark := "✅"
		if !a.OK {
			mark = "❌"
		}
		at := a.At
		if loc != nil {
			at = at.In(loc)
		}
		fmt.Fprintf(&b, "%s %s <code>%s</code> (%s)",
			mark, at.Format(timeLayout), html.EscapeString(a.JobID), a.Kind)
		if a.Error != "" {
			fmt.Fprintf(&b, " %s", html.EscapeString(a.Error))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatDigest is the daily summary of upcoming fire times.
func FormatDigest(snap schedule.Snapshot) string {
	var b strings.Builder
	b.WriteString("🌅 <b>Programul de azi</b>\n")
	for _, j := range snap.Jobs {
		if j.Kind != schedule.KindWarning {
			continue
		}
		fmt.Fprintf(&b, "• %s: %s (la fiecare %s)\n",
			html.EscapeString(j.Name), j.Next.Format(timeLayout), formatEvery(j.Every))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatEvery(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return d.String()
}
