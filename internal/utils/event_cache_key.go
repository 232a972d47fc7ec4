package utils

import (
	"strconv"
	"strings"
	"time"

	"github.com/bellcorp/events/internal/domain/event"
)

// BuildEventsListCacheKey folds the whole list filter into a stable key.
// Bump the v segment whenever the list response shape changes.
func BuildEventsListCacheKey(f event.ListEventsFilter) string {
	norm := func(p *string) string {
		if p == nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(*p))
	}

	ts := func(p *time.Time) string {
		if p == nil {
			return ""
		}
		return p.UTC().Format(time.RFC3339Nano)
	}

	return "events:list:v1" +
		":q=" + norm(f.Search) +
		":cat=" + norm(f.Category) +
		":loc=" + norm(f.Location) +
		":from=" + ts(f.From) +
		":to=" + ts(f.To) +
		":page=" + strconv.Itoa(f.Page) +
		":limit=" + strconv.Itoa(f.Limit)
}
