package deployment

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPreviewURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"app-git-feature.vercel.app", true},
		{"https://app-git-feature-team.vercel.app", true},
		{"app-a1b2c3d4.vercel.app", true},
		{"https://APP-A1B2C3D4E5.VERCEL.APP", false}, // suffix check is case-sensitive
		{"https://app-A1B2C3D4.vercel.app", true},
		{"site-preview-123.pages.dev", true},
		{"site-a1b2c3d.pages.dev", true},
		{"https://a1b2c3d4.site.pages.dev", false},
		{"app.vercel.app", false},
		{"app-a1b2c3d.vercel.app", false}, // 7 hex chars is too short for vercel
		{"site-a1b2c3.pages.dev", false},
		{"site.pages.dev", false},
		{"mysite.com", false},
		{"https://my-git-site.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPreviewURL(tt.url))
		})
	}
}

func TestPreviewPatterns_Extendable(t *testing.T) {
	saved := PreviewPatterns
	t.Cleanup(func() { PreviewPatterns = saved })

	assert.False(t, IsPreviewURL("https://deploy-preview-42--site.netlify.app"))

	PreviewPatterns = append(append([]PreviewPattern{}, saved...), PreviewPattern{
		Provider: "netlify",
		Suffix:   ".netlify.app",
		Infixes:  []string{"deploy-preview-"},
		Hash:     regexp.MustCompile(`^[a-f0-9]{24}--`),
	})
	assert.True(t, IsPreviewURL("https://deploy-preview-42--site.netlify.app"))
}
