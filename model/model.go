package model

import "time"

type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Terminal reports whether a task in this status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

type Step string

const (
	StepDownloading      Step = "downloading"
	StepTranscribing     Step = "transcribing"
	StepFetchingComments Step = "fetching_comments"
	StepAnalysing        Step = "analysing"
	StepDone             Step = "done"
)

// Request carries the submission parameters for one research run.
type Request struct {
	URL           string
	ModelSize     string
	Language      string
	InstaUsername string
	InstaPassword string
	MaxComments   int
	CookiesFile   string
}

// Task is the unit of work tracked across the service's lifetime. Progress
// is a 0-100 percentage and never decreases while the task is running.
// Exactly one of Result/Error is set once the task is terminal.
type Task struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	Step        Step      `json:"step,omitempty"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message,omitempty"`
	Result      *Result   `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	Request     Request   `json:"-"` // Don't expose credentials
}

// VideoInfo describes a downloaded media artifact.
type VideoInfo struct {
	Path        string  `json:"-"` // Local path, never exposed
	VideoURL    string  `json:"videoUrl,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Duration    float64 `json:"duration"`
	Platform    string  `json:"platform"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
	Uploader    string  `json:"uploader"`
	URL         string  `json:"url"`
}

type Segment struct {
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Text           string  `json:"text"`
	StartFormatted string  `json:"startFormatted"`
	EndFormatted   string  `json:"endFormatted"`
}

type Transcription struct {
	Text                string    `json:"text"`
	Segments            []Segment `json:"segments"`
	Language            string    `json:"language"`
	LanguageProbability float64   `json:"languageProbability,omitempty"`
	Formatted           string    `json:"formatted,omitempty"`
	FormattedPlain      string    `json:"formattedPlain,omitempty"`
}

type Comment struct {
	Text      string `json:"text"`
	Owner     string `json:"owner"`
	Likes     int    `json:"likes"`
	Timestamp string `json:"timestamp"`
}

type PostInfo struct {
	Caption   string `json:"caption"`
	Likes     int    `json:"likes"`
	Owner     string `json:"owner"`
	Date      string `json:"date"`
	IsVideo   bool   `json:"isVideo"`
	ViewCount int64  `json:"viewCount,omitempty"`
	MediaType string `json:"mediaType"`
}

// CommentSet is the output of the comment-fetch stage.
type CommentSet struct {
	Comments     []Comment `json:"comments"`
	PostInfo     *PostInfo `json:"postInfo,omitempty"`
	CommentCount int       `json:"commentCount"`
	LoginUsed    bool      `json:"loginUsed"`
}

// CommentScore is a single comment annotated with its VADER scores.
type CommentScore struct {
	Comment
	Compound  float64 `json:"compound"`
	Positive  float64 `json:"positive"`
	Negative  float64 `json:"negative"`
	Neutral   float64 `json:"neutral"`
	Sentiment string  `json:"sentiment"`
}

type Sentiment struct {
	Results         []CommentScore `json:"results"`
	Summary         string         `json:"summary"`
	Distribution    map[string]int `json:"distribution"`
	AverageCompound float64        `json:"averageCompound"`
	MostPositive    []CommentScore `json:"mostPositive"`
	MostNegative    []CommentScore `json:"mostNegative"`
}

type KeyPhrase struct {
	Phrase string  `json:"phrase"`
	Score  float64 `json:"score"`
}

type Theme struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

type KeyPoints struct {
	KeyPhrases    []KeyPhrase `json:"keyPhrases"`
	CommonThemes  []Theme     `json:"commonThemes,omitempty"`
	SummaryPoints []string    `json:"summaryPoints"`
}

// Result is the aggregated payload attached to a completed task. Sections
// that were unavailable (failed non-fatal stages, skipped stages) are nil.
type Result struct {
	Platform               string         `json:"platform"`
	IsInstagram            bool           `json:"isInstagram"`
	HasVideo               bool           `json:"hasVideo"`
	Video                  *VideoInfo     `json:"video,omitempty"`
	Transcription          *Transcription `json:"transcription,omitempty"`
	TranscriptionKeyPoints *KeyPoints     `json:"transcriptionKeyPoints,omitempty"`
	Instagram              *CommentSet    `json:"instagram,omitempty"`
	Sentiment              *Sentiment     `json:"sentiment,omitempty"`
	KeyPoints              *KeyPoints     `json:"keyPoints,omitempty"`
}
