package pipeline

import (
	"reelscope/model"
	"reelscope/platform"
)

// Sections holds whichever stage outputs a run produced. Any of the
// pointers may be nil.
type Sections struct {
	Platform            platform.Platform
	Video               *model.VideoInfo
	Transcription       *model.Transcription
	TranscriptKeyPoints *model.KeyPoints
	Comments            *model.CommentSet
	Sentiment           *model.Sentiment
	CommentKeyPoints    *model.KeyPoints
}

// Aggregate merges the available sections into the final result payload.
// It is a pure function and never fails: absent sections stay nil in the
// output.
func Aggregate(s Sections) *model.Result {
	return &model.Result{
		Platform:               string(s.Platform),
		IsInstagram:            s.Platform == platform.Instagram,
		HasVideo:               s.Video != nil && s.Video.Path != "",
		Video:                  s.Video,
		Transcription:          s.Transcription,
		TranscriptionKeyPoints: s.TranscriptKeyPoints,
		Instagram:              s.Comments,
		Sentiment:              s.Sentiment,
		KeyPoints:              s.CommentKeyPoints,
	}
}
