// Package analysis derives sentiment and key talking points from comment
// and transcript text. Both analyzers are best-effort enrichments: callers
// treat their failures as non-fatal and drop the corresponding section.
package analysis

import (
	"fmt"
	"sort"

	"github.com/grassmudhorses/vader-go/lexicon"
	"github.com/grassmudhorses/vader-go/sentitext"

	"reelscope/model"
)

const (
	SentimentPositive = "Positive"
	SentimentNegative = "Negative"
	SentimentNeutral  = "Neutral"

	// VADER's conventional thresholds on the compound score.
	positiveThreshold = 0.05
	negativeThreshold = -0.05

	topN = 5
)

// Classify maps a VADER compound score in [-1,1] to a sentiment label.
func Classify(compound float64) string {
	switch {
	case compound >= positiveThreshold:
		return SentimentPositive
	case compound <= negativeThreshold:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

type SentimentAnalyzer struct{}

func NewSentimentAnalyzer() *SentimentAnalyzer {
	return &SentimentAnalyzer{}
}

// AnalyzeComments scores every comment with VADER and summarizes the set:
// per-label distribution, average compound score and the top most positive
// and negative comments.
func (a *SentimentAnalyzer) AnalyzeComments(comments []model.Comment) (*model.Sentiment, error) {
	results := make([]model.CommentScore, 0, len(comments))
	for _, c := range comments {
		if c.Text == "" {
			continue
		}
		scores := sentitext.PolarityScore(sentitext.Parse(c.Text, lexicon.DefaultLexicon))
		results = append(results, model.CommentScore{
			Comment:   c,
			Compound:  scores.Compound,
			Positive:  scores.Positive,
			Negative:  scores.Negative,
			Neutral:   scores.Neutral,
			Sentiment: Classify(scores.Compound),
		})
	}

	if len(results) == 0 {
		return &model.Sentiment{
			Results: []model.CommentScore{},
			Summary: "No comments to analyze",
			Distribution: map[string]int{
				SentimentPositive: 0,
				SentimentNegative: 0,
				SentimentNeutral:  0,
			},
			MostPositive: []model.CommentScore{},
			MostNegative: []model.CommentScore{},
		}, nil
	}

	distribution := map[string]int{
		SentimentPositive: 0,
		SentimentNegative: 0,
		SentimentNeutral:  0,
	}
	sum := 0.0
	for _, r := range results {
		distribution[r.Sentiment]++
		sum += r.Compound
	}
	avg := sum / float64(len(results))

	ranked := make([]model.CommentScore, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Compound > ranked[j].Compound })

	mostPositive := ranked[:min(topN, len(ranked))]
	mostNegative := make([]model.CommentScore, 0, topN)
	for i := len(ranked) - 1; i >= 0 && len(mostNegative) < topN; i-- {
		mostNegative = append(mostNegative, ranked[i])
	}

	total := len(results)
	summary := fmt.Sprintf(
		"Overall sentiment: %s (avg score: %.3f). Distribution: %.1f%% positive, %.1f%% negative, %.1f%% neutral across %d comments.",
		Classify(avg), avg,
		100*float64(distribution[SentimentPositive])/float64(total),
		100*float64(distribution[SentimentNegative])/float64(total),
		100*float64(distribution[SentimentNeutral])/float64(total),
		total,
	)

	return &model.Sentiment{
		Results:         results,
		Summary:         summary,
		Distribution:    distribution,
		AverageCompound: avg,
		MostPositive:    mostPositive,
		MostNegative:    mostNegative,
	}, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
