package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	cases := []struct {
		url      string
		expected Platform
	}{
		{"https://www.instagram.com/reel/XYZ123/", Instagram},
		{"https://instagr.am/p/ABC/", Instagram},
		{"https://twitter.com/user/status/123", Twitter},
		{"https://x.com/user/status/123", Twitter},
		{"https://www.threads.net/@user/post/abc", Threads},
		{"https://youtube.com/watch?v=abc", YouTube},
		{"https://youtu.be/abc", YouTube},
		{"https://vm.tiktok.com/ZMabc/", TikTok},
		{"https://fb.watch/abc/", Facebook},
		{"https://v.redd.it/abc", Reddit},
		{"https://example.com/video.mp4", Other},
		{"not a url at all", Other},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expected, Detect(tc.url), "url: %s", tc.url)
	}
}

func TestDetect_NoScheme(t *testing.T) {
	assert.Equal(t, Instagram, Detect("www.instagram.com/reel/XYZ/"))
	assert.Equal(t, YouTube, Detect("youtu.be/abc"))
}

func TestIsInstagram(t *testing.T) {
	assert.True(t, IsInstagram("https://instagram.com/reel/XYZ"))
	assert.False(t, IsInstagram("https://youtube.com/watch?v=abc"))
}

func TestExtractShortcode(t *testing.T) {
	t.Run("reel URL", func(t *testing.T) {
		code, ok := ExtractShortcode("https://www.instagram.com/reel/ABC123_x-/")
		assert.True(t, ok)
		assert.Equal(t, "ABC123_x-", code)
	})

	t.Run("post and tv URLs", func(t *testing.T) {
		for _, u := range []string{
			"https://www.instagram.com/p/XYZ/",
			"https://www.instagram.com/reels/XYZ/",
			"https://www.instagram.com/tv/XYZ/",
		} {
			code, ok := ExtractShortcode(u)
			assert.True(t, ok, u)
			assert.Equal(t, "XYZ", code)
		}
	})

	t.Run("no shortcode", func(t *testing.T) {
		_, ok := ExtractShortcode("https://www.instagram.com/someuser/")
		assert.False(t, ok)
	})
}

func TestCleanURL(t *testing.T) {
	assert.Equal(t, "https://instagram.com/reel/X", CleanURL("  instagram.com/reel/X "))
	assert.Equal(t, "http://example.com", CleanURL("http://example.com"))
	assert.Equal(t, "", CleanURL("   "))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "00:05", FormatTimestamp(5.4))
	assert.Equal(t, "01:30", FormatTimestamp(90))
	assert.Equal(t, "01:01:01", FormatTimestamp(3661))
}
