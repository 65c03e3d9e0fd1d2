package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractReleaseNotes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "whats new until next section",
			body:     "## Kharrency 1.4\n\n### What's New:\n- Offline mode\n- Dark theme\n\n### Technical Details:\n- Gradle 8\n",
			expected: "- Offline mode\n- Dark theme",
		},
		{
			name:     "whats new until level two heading",
			body:     "### What's New:\n- One\n\n## Downloads\nget it\n",
			expected: "- One",
		},
		{
			name:     "deeper headings stay inside the section",
			body:     "### What's New:\n#### Conversions\n- Faster\n### Technical Details:\nnothing\n",
			expected: "#### Conversions\n- Faster",
		},
		{
			name:     "whats new at end of body",
			body:     "intro\n\n### What's New:\nEverything changed",
			expected: "Everything changed",
		},
		{
			name:     "windows line endings",
			body:     "### What's New:\r\n- Fix\r\n### Technical Details:\r\n- CI\r\n",
			expected: "- Fix",
		},
		{
			name:     "features fallback",
			body:     "Intro\n\n### Features:\n- Convert\n\n### Technical Details:\n- Go\n",
			expected: "### Features:\n- Convert",
		},
		{
			name:     "text before technical details",
			body:     "Bug fixes only.\n\n### Technical Details:\n- Go\n",
			expected: "Bug fixes only.",
		},
		{
			name:     "plain body",
			body:     "  Just a note  \n",
			expected: "Just a note",
		},
		{
			name:     "heading inside code block is ignored",
			body:     "```\n### What's New:\n```\nplain",
			expected: "```\n### What's New:\n```\nplain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractReleaseNotes(tt.body))
		})
	}
}

func TestParseVersionCode(t *testing.T) {
	tests := []struct {
		body     string
		expected int
	}{
		{"**Version Code:** 14", 14},
		{"Release\n\n**Version Code:**   7\nmore", 7},
		{"Version Code: 14", 1},
		{"", 1},
		{"**Version Code:** 99999999999999999999", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseVersionCode(tt.body), tt.body)
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 bytes"},
		{1023, "1023 bytes"},
		{1024, "1 KB"},
		{1<<20 - 1, "1023 KB"},
		{1 << 20, "1 MB"},
		{5<<20 + 512, "5 MB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatFileSize(tt.bytes))
	}
}

func TestFormatReleaseDate(t *testing.T) {
	assert.Equal(t, "Mar 15, 2024", FormatReleaseDate("2024-03-15T10:30:00Z"))
	assert.Equal(t, "Jan 02, 2023", FormatReleaseDate("2023-01-02T23:59:59+02:00"))
	assert.Equal(t, "2024-03-15", FormatReleaseDate("2024-03-15Tlater"))
	assert.Equal(t, "", FormatReleaseDate(""))
}

func TestVersionNameAndForce(t *testing.T) {
	assert.Equal(t, "1.2.3", VersionName("v1.2.3"))
	assert.Equal(t, "1.2.3", VersionName("1.2.3"))
	assert.False(t, IsForceUpdate(10, 13, 3))
	assert.True(t, IsForceUpdate(10, 14, 3))
}
