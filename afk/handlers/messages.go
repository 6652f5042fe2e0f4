package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/afkbot/afk"
	"github.com/m3rciful/afkbot/core/telegram/format"
	"github.com/m3rciful/afkbot/core/telegram/sender"
)

const (
	notAFKText     = "You are not AFK."
	notYoursText   = "This button is not for you."
	backButtonText = "I'm back"
)

func startText(mention string) string {
	return "👋 Hello, " + mention + "!\n\n" +
		"I'm your friendly <b>AFK Assistant Bot</b> 🤖.\n\n" +
		"Here’s what I can do for you:\n" +
		"🔹 <b>/afk [reason]</b> — Let everyone know you're away.\n" +
		"🔹 <b>/back</b> — Tell everyone you're back!\n\n" +
		"⏰ I'll also mark you AFK if you're inactive for a while.\n\n" +
		"<i>Stay active, stay awesome!</i> ✨"
}

func awayText(mention, reason string) string {
	return fmt.Sprintf("%s is now AFK: %s", mention, format.EscapeHTML(reason))
}

func backText(mention string, d time.Duration) string {
	return fmt.Sprintf("Welcome back %s! You were AFK for %s.", mention, format.Duration(d))
}

func announceText(mention, reason string, d time.Duration) string {
	return fmt.Sprintf("%s is currently AFK (%s) — for %s.", mention, format.EscapeHTML(reason), format.Duration(d))
}

func statsText(st afk.Stats, out sender.Stats) string {
	var b strings.Builder
	b.WriteString(format.Bold("AFK stats") + "\n")
	fmt.Fprintf(&b, "Tracked users: %d\n", st.Tracked)
	fmt.Fprintf(&b, "Away now: %d\n", st.Away)
	fmt.Fprintf(&b, "Cache: %.1f%% hits (%d/%d), %d entries\n",
		st.Cache.HitRatio()*100, st.Cache.Hits, st.Cache.Hits+st.Cache.Misses, st.Cache.Size)
	fmt.Fprintf(&b, "Sweeps: %d, marked %d, pruned %d\n", st.Sweeps, st.SweptTotal, st.PrunedTotal)
	if !st.LastSweepAt.IsZero() {
		fmt.Fprintf(&b, "Last sweep: %s (%d ms)\n", st.LastSweepAt.Format(time.RFC3339), st.LastSweepDur)
	}
	fmt.Fprintf(&b, "Pending activity: %d\n", st.PendingSeen)
	fmt.Fprintf(&b, "Outbound: %d sent, %d failed", out.Sent, out.Failed)
	if out.Rejected > 0 {
		fmt.Fprintf(&b, " (%d refused by chats)", out.Rejected)
	}
	return b.String()
}
