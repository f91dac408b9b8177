package deployment

import (
	"regexp"
	"strings"
)

// PreviewPattern describes how one hosting provider names its ephemeral
// preview deployments.
type PreviewPattern struct {
	Provider string
	Suffix   string         // platform host suffix, e.g. ".vercel.app"
	Infixes  []string       // branch or preview markers
	Hash     *regexp.Regexp // short commit hash subdomain
}

// PreviewPatterns is the table IsPreviewURL consults
var PreviewPatterns = []PreviewPattern{
	{
		Provider: ProviderVercel,
		Suffix:   ".vercel.app",
		Infixes:  []string{"-git-"},
		Hash:     regexp.MustCompile(`(?i)-[a-f0-9]{8,}\.vercel\.app`),
	},
	{
		Provider: ProviderCloudflare,
		Suffix:   ".pages.dev",
		Infixes:  []string{"-preview-"},
		Hash:     regexp.MustCompile(`(?i)-[a-f0-9]{7,}\.pages\.dev`),
	},
}

// IsPreviewURL reports whether url points at a preview deployment of a
// known provider. An empty url is never a preview.
func IsPreviewURL(url string) bool {
	if url == "" {
		return false
	}
	for _, p := range PreviewPatterns {
		if p.matches(url) {
			return true
		}
	}
	return false
}

func (p PreviewPattern) matches(url string) bool {
	if !strings.Contains(url, p.Suffix) {
		return false
	}
	for _, infix := range p.Infixes {
		if strings.Contains(url, infix) {
			return true
		}
	}
	return p.Hash != nil && p.Hash.MatchString(url)
}
