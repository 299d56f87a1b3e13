package reconcile

import (
	"sort"

	"github.com/kiranshivaraju/livewatch/internal/page"
)

// Deduplicator appends snapshot messages to a page, at most once per key.
// Zero value is ready to use.
type Deduplicator struct{}

// Apply appends a notice for every key not rendered yet and returns how many
// were appended. Keys are visited in ascending order; a nil map is a no-op.
func (Deduplicator) Apply(p *page.Page, messages map[string]string) int {
	if len(messages) == 0 {
		return 0
	}

	keys := make([]string, 0, len(messages))
	for k := range messages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	appended := 0
	for _, k := range keys {
		if p.HasMessage(k) {
			continue
		}
		if p.AppendMessage(k, messages[k]) {
			appended++
		}
	}
	return appended
}
