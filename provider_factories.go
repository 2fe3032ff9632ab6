package monitor

import (
	"github.com/goliatone/go-config-monitor/core"
	"github.com/goliatone/go-config-monitor/extractors"
)

func GitHubProvider() core.Provider {
	return extractors.GitHub()
}

func GitLabProvider() core.Provider {
	return extractors.GitLab()
}

func GiteaProvider() core.Provider {
	return extractors.Gitea()
}

func GogsProvider() core.Provider {
	return extractors.Gogs()
}

func GiteeProvider() core.Provider {
	return extractors.Gitee()
}

func BitbucketProvider() core.Provider {
	return extractors.Bitbucket()
}

func SimpleProvider() core.Provider {
	return extractors.Simple()
}

// ExtractorFor combines the given providers into one extractor, tried in
// order. Without providers every built-in provider is used.
func ExtractorFor(providers ...core.Provider) NotificationExtractor {
	if len(providers) == 0 {
		return extractors.Default()
	}
	return extractors.FromProviders(providers...)
}
