package analysis

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	rake "github.com/afjoseph/RAKE.Go"
	"github.com/bbalet/stopwords"

	"reelscope/model"
)

var wordRe = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)

// Filler words common in social media comments that survive generic
// stopword lists but carry no theme signal.
var socialStopwords = map[string]struct{}{
	"like": {}, "just": {}, "get": {}, "got": {}, "one": {}, "would": {},
	"could": {}, "also": {}, "really": {}, "much": {}, "even": {},
	"still": {}, "thing": {}, "things": {}, "way": {}, "good": {},
	"great": {}, "nice": {}, "lol": {}, "omg": {}, "wow": {}, "yes": {},
	"please": {}, "thanks": {}, "thank": {}, "love": {}, "amazing": {},
	"awesome": {}, "http": {}, "https": {}, "www": {}, "com": {},
}

type KeyPointExtractor struct {
	maxPoints int
}

func NewKeyPointExtractor() *KeyPointExtractor {
	return &KeyPointExtractor{maxPoints: 10}
}

// extractKeywords runs RAKE over the text and keeps the top deduplicated
// phrases.
func extractKeywords(text string, max int) []model.KeyPhrase {
	candidates := rake.RunRake(text)

	keywords := make([]model.KeyPhrase, 0, max)
	seen := make(map[string]struct{})
	for _, c := range candidates {
		normalized := strings.ToLower(strings.TrimSpace(c.Key))
		if len(normalized) < 3 {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		keywords = append(keywords, model.KeyPhrase{
			Phrase: c.Key,
			Score:  math.Round(c.Value*100) / 100,
		})
		if len(keywords) >= max {
			break
		}
	}
	return keywords
}

// commonThemes counts meaningful word frequencies after stripping both the
// generic English stopword list and the social-media fillers.
func commonThemes(text string, max int) []model.Theme {
	cleaned := stopwords.CleanString(strings.ToLower(text), "en", false)

	counts := make(map[string]int)
	for _, word := range wordRe.FindAllString(cleaned, -1) {
		if _, skip := socialStopwords[word]; skip {
			continue
		}
		counts[word]++
	}

	themes := make([]model.Theme, 0, len(counts))
	for word, count := range counts {
		themes = append(themes, model.Theme{Word: word, Count: count})
	}
	sort.Slice(themes, func(i, j int) bool {
		if themes[i].Count != themes[j].Count {
			return themes[i].Count > themes[j].Count
		}
		return themes[i].Word < themes[j].Word
	})
	if len(themes) > max {
		themes = themes[:max]
	}
	return themes
}

// FromComments extracts recurring phrases, themes and notable comments from
// a comment set.
func (e *KeyPointExtractor) FromComments(comments []model.Comment) (*model.KeyPoints, error) {
	var parts []string
	for _, c := range comments {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	allText := strings.Join(parts, " ")
	if strings.TrimSpace(allText) == "" {
		return &model.KeyPoints{
			KeyPhrases:    []model.KeyPhrase{},
			CommonThemes:  []model.Theme{},
			SummaryPoints: []string{"No comment text available for analysis."},
		}, nil
	}

	keyPhrases := extractKeywords(allText, e.maxPoints)
	themes := commonThemes(allText, e.maxPoints)

	var summaryPoints []string
	if len(keyPhrases) > 0 {
		summaryPoints = append(summaryPoints,
			"Top topics discussed: "+joinPhrases(keyPhrases, 5))
	}
	if len(themes) > 0 {
		words := make([]string, 0, 5)
		for _, t := range themes[:min(5, len(themes))] {
			words = append(words, t.Word)
		}
		summaryPoints = append(summaryPoints,
			"Most frequently mentioned: "+strings.Join(words, ", "))
	}

	// Quote the most-liked comments for engagement context.
	liked := make([]model.Comment, 0, len(comments))
	for _, c := range comments {
		if c.Likes > 0 {
			liked = append(liked, c)
		}
	}
	sort.SliceStable(liked, func(i, j int) bool { return liked[i].Likes > liked[j].Likes })
	for _, c := range liked[:min(3, len(liked))] {
		summaryPoints = append(summaryPoints,
			fmt.Sprintf("Popular comment (%d likes): %q", c.Likes, truncate(c.Text, 100)))
	}

	if len(summaryPoints) == 0 {
		summaryPoints = append(summaryPoints, "Not enough data to extract meaningful points.")
	}

	return &model.KeyPoints{
		KeyPhrases:    keyPhrases,
		CommonThemes:  themes,
		SummaryPoints: summaryPoints,
	}, nil
}

// FromTranscript extracts the key topics of a transcript and a context
// sentence for the top one.
func (e *KeyPointExtractor) FromTranscript(text string) (*model.KeyPoints, error) {
	if strings.TrimSpace(text) == "" {
		return &model.KeyPoints{
			KeyPhrases:    []model.KeyPhrase{},
			SummaryPoints: []string{"No transcription text available."},
		}, nil
	}

	keyPhrases := extractKeywords(text, e.maxPoints)

	var summaryPoints []string
	if len(keyPhrases) > 0 {
		summaryPoints = append(summaryPoints,
			"Key topics in the video: "+joinPhrases(keyPhrases, 5))

		topPhrase := strings.ToLower(keyPhrases[0].Phrase)
		for _, sentence := range splitSentences(text) {
			if strings.Contains(strings.ToLower(sentence), topPhrase) {
				summaryPoints = append(summaryPoints,
					fmt.Sprintf("Context: %q", truncate(sentence, 150)))
				break
			}
		}
	}

	if len(summaryPoints) == 0 {
		summaryPoints = append(summaryPoints, "Not enough content to extract key points.")
	}

	return &model.KeyPoints{
		KeyPhrases:    keyPhrases,
		SummaryPoints: summaryPoints,
	}, nil
}

func joinPhrases(phrases []model.KeyPhrase, n int) string {
	topics := make([]string, 0, n)
	for _, p := range phrases[:min(n, len(phrases))] {
		topics = append(topics, p.Phrase)
	}
	return strings.Join(topics, ", ")
}

var sentenceRe = regexp.MustCompile(`[.!?]+`)

func splitSentences(text string) []string {
	var sentences []string
	for _, s := range sentenceRe.Split(text, -1) {
		s = strings.TrimSpace(s)
		if len(s) > 20 {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
