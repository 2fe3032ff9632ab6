package extractors

import (
	"strings"

	"github.com/goliatone/go-config-monitor/core"
)

var commitPathKeys = []string{"added", "removed", "modified"}

// commitPaths walks payload["commits"][*].{added,removed,modified} keeping
// first-seen order and dropping blanks and duplicates. It reports false when
// the payload carries no commits list.
func commitPaths(payload map[string]any) ([]string, bool) {
	raw, ok := payload["commits"]
	if !ok || raw == nil {
		return nil, false
	}
	commits, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	seen := map[string]struct{}{}
	paths := make([]string, 0, len(commits))
	for _, item := range commits {
		commit, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range commitPathKeys {
			for _, path := range stringList(commit[key]) {
				if _, dup := seen[path]; dup {
					continue
				}
				seen[path] = struct{}{}
				paths = append(paths, path)
			}
		}
	}
	return paths, true
}

// stringList accepts a string, []string or []any and returns the non-blank
// entries.
func stringList(raw any) []string {
	switch typed := raw.(type) {
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil
		}
		return []string{typed}
	case []string:
		out := make([]string, 0, len(typed))
		for _, value := range typed {
			if strings.TrimSpace(value) != "" {
				out = append(out, value)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(typed))
		for _, value := range typed {
			text, ok := value.(string)
			if ok && strings.TrimSpace(text) != "" {
				out = append(out, text)
			}
		}
		return out
	default:
		return nil
	}
}

func eventMatches(headers map[string]string, header string, values ...string) bool {
	event := strings.TrimSpace(core.HeaderValue(headers, header))
	if event == "" {
		return false
	}
	for _, value := range values {
		if strings.EqualFold(event, value) {
			return true
		}
	}
	return false
}
