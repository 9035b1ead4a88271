package platform

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Platform is a tag for the site a URL belongs to.
type Platform string

const (
	Instagram Platform = "instagram"
	Twitter   Platform = "twitter"
	Threads   Platform = "threads"
	YouTube   Platform = "youtube"
	TikTok    Platform = "tiktok"
	Facebook  Platform = "facebook"
	Reddit    Platform = "reddit"
	Other     Platform = "other"
)

// Ordered rule list; the first hostname match wins.
var platformRules = []struct {
	tag      Platform
	patterns []*regexp.Regexp
}{
	{Instagram, compileAll(`(www\.)?instagram\.com`, `instagr\.am`)},
	{Twitter, compileAll(`(www\.)?twitter\.com`, `(www\.)?x\.com`)},
	{Threads, compileAll(`(www\.)?threads\.net`)},
	{YouTube, compileAll(`(www\.)?youtube\.com`, `youtu\.be`)},
	{TikTok, compileAll(`(www\.)?tiktok\.com`, `vm\.tiktok\.com`)},
	{Facebook, compileAll(`(www\.)?facebook\.com`, `fb\.watch`)},
	{Reddit, compileAll(`(www\.)?reddit\.com`, `v\.redd\.it`)},
}

var shortcodeRe = regexp.MustCompile(`instagram\.com/(?:reel|reels|p|tv)/([A-Za-z0-9_-]+)`)

func compileAll(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(p)
	}
	return res
}

// Detect classifies a URL into a platform tag. Unrecognized URLs map to
// Other; there is no failure mode.
func Detect(rawURL string) Platform {
	hostname := hostOf(rawURL)
	for _, rule := range platformRules {
		for _, re := range rule.patterns {
			if re.MatchString(hostname) {
				return rule.tag
			}
		}
	}
	return Other
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(CleanURL(rawURL))
	if err != nil || parsed.Host == "" {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(parsed.Host)
}

// IsInstagram reports whether the URL points at Instagram.
func IsInstagram(rawURL string) bool {
	return Detect(rawURL) == Instagram
}

// ExtractShortcode pulls the shortcode out of an Instagram post, reel or tv
// URL. The second return is false when the URL carries no shortcode.
func ExtractShortcode(rawURL string) (string, bool) {
	m := shortcodeRe.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// CleanURL trims whitespace and defaults the scheme to https.
func CleanURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return rawURL
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	return rawURL
}

// FormatTimestamp renders seconds as HH:MM:SS, or MM:SS under an hour.
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
