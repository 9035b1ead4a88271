// Package instagram fetches post metadata and comments from Instagram's
// web JSON endpoints. Authentication (session cookies or a username and
// password login) is optional but improves access to comments and reduces
// rate limiting.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"reelscope/config"
	"reelscope/model"
	"reelscope/platform"
)

const (
	defaultBaseURL = "https://www.instagram.com"
	webAppID       = "936619743392459" // X-IG-App-ID used by the web client
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Fetcher retrieves comments for Instagram posts and reels. Responses are
// cached per shortcode for a short TTL so repeated submissions of the same
// reel do not hammer Instagram.
type Fetcher struct {
	cfg     *config.Config
	baseURL string
	cache   *gocache.Cache
}

func NewFetcher(cfg *config.Config) *Fetcher {
	return &Fetcher{
		cfg:     cfg,
		baseURL: defaultBaseURL,
		cache:   gocache.New(cfg.CommentCacheTTL, cfg.CommentCacheTTL),
	}
}

// Fetch returns up to maxComments comments for the post at rawURL, plus the
// post's metadata. maxComments is clamped to the configured range.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, username, password string, maxComments int, cookiesFile string) (*model.CommentSet, error) {
	shortcode, ok := platform.ExtractShortcode(rawURL)
	if !ok {
		return nil, fmt.Errorf("could not extract Instagram shortcode from URL: %s", rawURL)
	}
	maxComments = f.cfg.ClampComments(maxComments)

	if cached, ok := f.cache.Get(shortcode); ok {
		log.WithField("shortcode", shortcode).Debug("comment cache hit")
		return trimSet(cached.(*model.CommentSet), maxComments), nil
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Jar: jar, Timeout: 30 * time.Second}

	if cookiesFile != "" {
		cookies, err := ParseCookiesFile(cookiesFile)
		if err != nil {
			return nil, fmt.Errorf("could not read cookies file: %w", err)
		}
		base, _ := url.Parse(f.baseURL)
		jar.SetCookies(base, cookies)
	}

	loginUsed := false
	if username != "" && password != "" {
		if err := f.login(ctx, client, username, password); err != nil {
			return nil, err
		}
		loginUsed = true
	}

	media, err := f.fetchMedia(ctx, client, shortcode)
	if err != nil {
		return nil, err
	}

	// Cache the full set; the clamp only applies on the way out, so a later
	// request with a larger limit is not stuck with an earlier, smaller trim.
	set := buildCommentSet(media)
	set.LoginUsed = loginUsed
	f.cache.Set(shortcode, set, gocache.DefaultExpiration)
	return trimSet(set, maxComments), nil
}

// login performs the web login flow: grab a csrf token, then post the
// browser-style enc_password form.
func (f *Fetcher) login(ctx context.Context, client *http.Client, username, password string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach Instagram: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	csrf := ""
	base, _ := url.Parse(f.baseURL)
	for _, c := range client.Jar.Cookies(base) {
		if c.Name == "csrftoken" {
			csrf = c.Value
		}
	}
	if csrf == "" {
		return fmt.Errorf("no csrf token in Instagram response")
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("enc_password", fmt.Sprintf("#PWD_INSTAGRAM_BROWSER:0:%d:%s", time.Now().Unix(), password))

	req, err = http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/api/v1/web/accounts/login/ajax/", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRFToken", csrf)
	req.Header.Set("X-IG-App-ID", webAppID)

	resp, err = client.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	var login struct {
		Authenticated     bool `json:"authenticated"`
		TwoFactorRequired bool `json:"two_factor_required"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return fmt.Errorf("unexpected login response: %w", err)
	}
	if login.TwoFactorRequired {
		return fmt.Errorf("two-factor authentication is enabled; use a cookies file instead")
	}
	if !login.Authenticated {
		return fmt.Errorf("invalid Instagram credentials")
	}
	return nil
}

// mediaResponse covers the web JSON shape for a single post.
type mediaResponse struct {
	Graphql struct {
		ShortcodeMedia struct {
			EdgeMediaToCaption struct {
				Edges []struct {
					Node struct {
						Text string `json:"text"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"edge_media_to_caption"`
			EdgeMediaPreviewLike struct {
				Count int `json:"count"`
			} `json:"edge_media_preview_like"`
			Owner struct {
				Username string `json:"username"`
			} `json:"owner"`
			TakenAtTimestamp int64 `json:"taken_at_timestamp"`
			IsVideo          bool  `json:"is_video"`
			VideoViewCount   int64 `json:"video_view_count"`
			EdgeMediaToParentComment struct {
				Edges []struct {
					Node struct {
						Text      string `json:"text"`
						CreatedAt int64  `json:"created_at"`
						Owner     struct {
							Username string `json:"username"`
						} `json:"owner"`
						EdgeLikedBy struct {
							Count int `json:"count"`
						} `json:"edge_liked_by"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"edge_media_to_parent_comment"`
		} `json:"shortcode_media"`
	} `json:"graphql"`
}

func (f *Fetcher) fetchMedia(ctx context.Context, client *http.Client, shortcode string) (*mediaResponse, error) {
	endpoint := fmt.Sprintf("%s/p/%s/?__a=1&__d=dis", f.baseURL, shortcode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-IG-App-ID", webAppID)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch Instagram post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch Instagram post, status %s; it may be private or deleted, try providing credentials", resp.Status)
	}

	var media mediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&media); err != nil {
		return nil, fmt.Errorf("unexpected Instagram response: %w", err)
	}
	if media.Graphql.ShortcodeMedia.Owner.Username == "" {
		return nil, fmt.Errorf("Instagram returned no post data; it may require authentication")
	}
	return &media, nil
}

func buildCommentSet(media *mediaResponse) *model.CommentSet {
	sm := media.Graphql.ShortcodeMedia

	caption := ""
	if len(sm.EdgeMediaToCaption.Edges) > 0 {
		caption = sm.EdgeMediaToCaption.Edges[0].Node.Text
	}
	mediaType := "image"
	if sm.IsVideo {
		mediaType = "reel"
	}
	post := &model.PostInfo{
		Caption:   caption,
		Likes:     sm.EdgeMediaPreviewLike.Count,
		Owner:     sm.Owner.Username,
		Date:      time.Unix(sm.TakenAtTimestamp, 0).UTC().Format(time.RFC3339),
		IsVideo:   sm.IsVideo,
		MediaType: mediaType,
	}
	if sm.IsVideo {
		post.ViewCount = sm.VideoViewCount
	}

	comments := make([]model.Comment, 0, len(sm.EdgeMediaToParentComment.Edges))
	for _, edge := range sm.EdgeMediaToParentComment.Edges {
		comments = append(comments, model.Comment{
			Text:      edge.Node.Text,
			Owner:     edge.Node.Owner.Username,
			Likes:     edge.Node.EdgeLikedBy.Count,
			Timestamp: time.Unix(edge.Node.CreatedAt, 0).UTC().Format(time.RFC3339),
		})
	}

	return &model.CommentSet{
		Comments:     comments,
		PostInfo:     post,
		CommentCount: len(comments),
	}
}

func trimSet(set *model.CommentSet, maxComments int) *model.CommentSet {
	if len(set.Comments) <= maxComments {
		return set
	}
	trimmed := *set
	trimmed.Comments = set.Comments[:maxComments]
	trimmed.CommentCount = maxComments
	return &trimmed
}
