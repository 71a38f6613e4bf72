package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/wakefeed/wake/internal/activity"
)

// matchFeed compares one stream's final read against its expectation and
// returns one message per mismatch. Entry order matters: feeds read
// newest first.
func matchFeed(fe FeedExpect, entries []*activity.FeedEntry) []string {
	if len(entries) != len(fe.Entries) {
		return []string{fmt.Sprintf("feed %s: expected %d entries, got %d%s",
			fe.Stream, len(fe.Entries), len(entries), describeEntries(entries))}
	}

	var errs []string
	for i, want := range fe.Entries {
		got := entries[i]
		if got.ActivityType != want.Activity {
			errs = append(errs, fmt.Sprintf("feed %s entry %d: expected activity %q, got %q",
				fe.Stream, i, want.Activity, got.ActivityType))
		}
		if want.Verb != "" && got.Verb != want.Verb {
			errs = append(errs, fmt.Sprintf("feed %s entry %d: expected verb %q, got %q",
				fe.Stream, i, want.Verb, got.Verb))
		}
		errs = append(errs, matchRole(fe.Stream, i, activity.RoleActor, want.Actors, got)...)
		errs = append(errs, matchRole(fe.Stream, i, activity.RoleObject, want.Objects, got)...)
		errs = append(errs, matchRole(fe.Stream, i, activity.RoleTarget, want.Targets, got)...)
	}
	return errs
}

func matchRole(stream string, index int, role activity.Role, want []string, entry *activity.FeedEntry) []string {
	if want == nil {
		return nil
	}
	got := entityIDs(entry.Entities(role))
	if slices.Equal(got, want) {
		return nil
	}
	return []string{fmt.Sprintf("feed %s entry %d: expected %s [%s], got [%s]",
		stream, index, role, strings.Join(want, ", "), strings.Join(got, ", "))}
}

func entityIDs(ents []*activity.Entity) []string {
	ids := make([]string, 0, len(ents))
	for _, ent := range ents {
		ids = append(ids, ent.ID)
	}
	return ids
}

// describeEntries renders the actual feed for count-mismatch messages.
func describeEntries(entries []*activity.FeedEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("\n  actual feed:")
	for i, e := range entries {
		fmt.Fprintf(&buf, "\n  [%d] %s %s actors=%v objects=%v targets=%v",
			i, e.ActivityType, e.Verb,
			entityIDs(e.Actors), entityIDs(e.Objects), entityIDs(e.Targets))
	}
	return buf.String()
}
