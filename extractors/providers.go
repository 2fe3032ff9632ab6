package extractors

import (
	"github.com/goliatone/go-config-monitor/core"
)

const (
	ProviderGitHub    = "github"
	ProviderGitLab    = "gitlab"
	ProviderGitee     = "gitee"
	ProviderGitea     = "gitea"
	ProviderGogs      = "gogs"
	ProviderBitbucket = "bitbucket"
	ProviderSimple    = "simple"
)

// SharedConfigPath is reported for providers whose push payloads do not list
// changed files, so every service refreshes.
const SharedConfigPath = "application.yml"

// commitPushExtractor handles the providers that send GitHub style commit
// lists on a push event header.
type commitPushExtractor struct {
	id     string
	header string
	events []string
}

func (e commitPushExtractor) ID() string { return e.id }

func (e commitPushExtractor) Extractor() core.NotificationExtractor { return e }

func (e commitPushExtractor) Extract(headers map[string]string, payload map[string]any) (core.PropertyPathNotification, bool) {
	if !eventMatches(headers, e.header, e.events...) {
		return core.PropertyPathNotification{}, false
	}
	paths, ok := commitPaths(payload)
	if !ok {
		return core.PropertyPathNotification{}, false
	}
	return core.NewPropertyPathNotification(paths...), true
}

func GitHub() core.Provider {
	return commitPushExtractor{id: ProviderGitHub, header: "X-GitHub-Event", events: []string{"push"}}
}

func GitLab() core.Provider {
	return commitPushExtractor{id: ProviderGitLab, header: "X-Gitlab-Event", events: []string{"Push Hook"}}
}

func Gitea() core.Provider {
	return commitPushExtractor{id: ProviderGitea, header: "X-Gitea-Event", events: []string{"push"}}
}

func Gogs() core.Provider {
	return commitPushExtractor{id: ProviderGogs, header: "X-Gogs-Event", events: []string{"push"}}
}

type giteeExtractor struct{}

func Gitee() core.Provider { return giteeExtractor{} }

func (giteeExtractor) ID() string { return ProviderGitee }

func (e giteeExtractor) Extractor() core.NotificationExtractor { return e }

func (giteeExtractor) Extract(headers map[string]string, payload map[string]any) (core.PropertyPathNotification, bool) {
	if !eventMatches(headers, "X-Gitee-Event", "Push Hook") &&
		!eventMatches(headers, "X-Git-Oschina-Event", "Push Hook") {
		return core.PropertyPathNotification{}, false
	}
	paths, ok := commitPaths(payload)
	if !ok {
		return core.PropertyPathNotification{}, false
	}
	return core.NewPropertyPathNotification(paths...), true
}

type bitbucketExtractor struct{}

// Bitbucket recognizes cloud and server push events. Their payloads carry no
// file list, so the notification always names the shared configuration file.
func Bitbucket() core.Provider { return bitbucketExtractor{} }

func (bitbucketExtractor) ID() string { return ProviderBitbucket }

func (e bitbucketExtractor) Extractor() core.NotificationExtractor { return e }

func (bitbucketExtractor) Extract(headers map[string]string, _ map[string]any) (core.PropertyPathNotification, bool) {
	if !eventMatches(headers, "X-Event-Key", "repo:push", "repo:refs_changed") {
		return core.PropertyPathNotification{}, false
	}
	return core.NewPropertyPathNotification(SharedConfigPath), true
}

type simpleExtractor struct{}

// Simple accepts {"path": "a.yml"} or {"path": ["a.yml", "b.yml"]} from any
// sender.
func Simple() core.Provider { return simpleExtractor{} }

func (simpleExtractor) ID() string { return ProviderSimple }

func (e simpleExtractor) Extractor() core.NotificationExtractor { return e }

func (simpleExtractor) Extract(_ map[string]string, payload map[string]any) (core.PropertyPathNotification, bool) {
	raw, ok := payload["path"]
	if !ok {
		return core.PropertyPathNotification{}, false
	}
	switch raw.(type) {
	case string, []string, []any:
	default:
		return core.PropertyPathNotification{}, false
	}
	return core.NewPropertyPathNotification(stringList(raw)...), true
}

// Defaults returns every built-in provider in detection order. Gitea and Gogs
// also send GitHub style headers, so they are tried before GitHub.
func Defaults() []core.Provider {
	return []core.Provider{
		Gitea(),
		Gogs(),
		Gitee(),
		GitLab(),
		GitHub(),
		Bitbucket(),
		Simple(),
	}
}

// DetectProvider names the provider whose event header is present.
func DetectProvider(headers map[string]string) string {
	switch {
	case core.HeaderValue(headers, "X-Gitea-Event") != "":
		return ProviderGitea
	case core.HeaderValue(headers, "X-Gogs-Event") != "":
		return ProviderGogs
	case core.HeaderValue(headers, "X-Gitee-Event") != "", core.HeaderValue(headers, "X-Git-Oschina-Event") != "":
		return ProviderGitee
	case core.HeaderValue(headers, "X-Gitlab-Event") != "":
		return ProviderGitLab
	case core.HeaderValue(headers, "X-GitHub-Event") != "":
		return ProviderGitHub
	case core.HeaderValue(headers, "X-Event-Key") != "":
		return ProviderBitbucket
	default:
		return ProviderSimple
	}
}
