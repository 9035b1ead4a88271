// Package pipeline runs the fixed research stage sequence for one task:
// download, transcribe, and for Instagram sources comment fetching and
// analysis. Download and transcription failures abort the task; the
// comment and analysis stages only degrade the result.
package pipeline

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"reelscope/model"
	"reelscope/platform"
	"reelscope/task"
)

type Downloader interface {
	Download(ctx context.Context, rawURL, cookiesFile string, progress func(pct float64, msg string)) (*model.VideoInfo, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath, modelSize, language string) (*model.Transcription, error)
}

type CommentFetcher interface {
	Fetch(ctx context.Context, rawURL, username, password string, maxComments int, cookiesFile string) (*model.CommentSet, error)
}

type SentimentAnalyzer interface {
	AnalyzeComments(comments []model.Comment) (*model.Sentiment, error)
}

type KeyPointExtractor interface {
	FromComments(comments []model.Comment) (*model.KeyPoints, error)
	FromTranscript(text string) (*model.KeyPoints, error)
}

// Stage progress bands. Each stage reports within its own band so pollers
// observe monotonic progress across stage boundaries.
const (
	progressDownloadStart   = 2
	progressDownloadDone    = 25
	progressTranscribeStart = 28
	progressKeyPoints       = 55
	progressTranscribeDone  = 60
	progressCommentsStart   = 62
	progressCommentsDone    = 75
	progressAnalyseStart    = 78
	progressAnalyseMid      = 88
	progressAnalyseDone     = 95
)

type Pipeline struct {
	registry    *task.Registry
	downloader  Downloader
	transcriber Transcriber
	comments    CommentFetcher
	sentiment   SentimentAnalyzer
	keyPoints   KeyPointExtractor
}

func New(registry *task.Registry, dl Downloader, tr Transcriber, cf CommentFetcher, sa SentimentAnalyzer, kp KeyPointExtractor) *Pipeline {
	return &Pipeline{
		registry:    registry,
		downloader:  dl,
		transcriber: tr,
		comments:    cf,
		sentiment:   sa,
		keyPoints:   kp,
	}
}

// Run executes the stage sequence for t and returns the aggregated result.
// The registry is updated at every stage boundary and mid-stage while
// downloading. A non-nil error means the task failed; the caller must not
// attach any partial result.
func (p *Pipeline) Run(ctx context.Context, t model.Task) (res *model.Result, err error) {
	req := t.Request
	rawURL := platform.CleanURL(req.URL)
	plat := platform.Detect(rawURL)
	logger := log.WithField("task", t.ID)

	var sections Sections
	sections.Platform = plat

	// Fatal paths never expose an artifact: drop whatever was downloaded.
	defer func() {
		if err != nil && sections.Video != nil && sections.Video.Path != "" {
			os.Remove(sections.Video.Path)
		}
	}()

	// Stage 1: download.
	p.update(t.ID, model.StepDownloading, progressDownloadStart, "Downloading video...")
	video, dlErr := p.downloader.Download(ctx, rawURL, req.CookiesFile, func(pct float64, msg string) {
		band := progressDownloadDone - progressDownloadStart
		p.update(t.ID, model.StepDownloading, progressDownloadStart+int(pct*float64(band)), msg)
	})
	if dlErr != nil {
		return nil, fmt.Errorf("download failed: %w", dlErr)
	}
	sections.Video = video
	p.update(t.ID, model.StepDownloading, progressDownloadDone, "Download complete")

	if err := cancelled(ctx); err != nil {
		return nil, err
	}

	// Stage 2: transcribe.
	p.update(t.ID, model.StepTranscribing, progressTranscribeStart, "Loading transcription model...")
	transcription, trErr := p.transcriber.Transcribe(ctx, video.Path, req.ModelSize, req.Language)
	if trErr != nil {
		return nil, fmt.Errorf("transcription failed: %w", trErr)
	}
	sections.Transcription = transcription

	p.update(t.ID, model.StepTranscribing, progressKeyPoints, "Extracting key points...")
	if kp, kpErr := p.keyPoints.FromTranscript(transcription.Text); kpErr != nil {
		logger.WithError(kpErr).Warn("transcript key point extraction failed")
	} else {
		sections.TranscriptKeyPoints = kp
	}
	p.update(t.ID, model.StepTranscribing, progressTranscribeDone, "Transcription complete")

	// Stages 3 and 4 only apply to Instagram sources.
	if plat == platform.Instagram {
		if err := cancelled(ctx); err != nil {
			return nil, err
		}
		p.runInstagramStages(ctx, t, rawURL, &sections)
	}

	return Aggregate(sections), nil
}

// runInstagramStages fetches comments and derives sentiment and key points.
// Every failure here is non-fatal: the section is dropped and the task
// still completes.
func (p *Pipeline) runInstagramStages(ctx context.Context, t model.Task, rawURL string, sections *Sections) {
	req := t.Request
	logger := log.WithField("task", t.ID)

	p.update(t.ID, model.StepFetchingComments, progressCommentsStart, "Fetching Instagram comments...")
	set, err := p.comments.Fetch(ctx, rawURL, req.InstaUsername, req.InstaPassword, req.MaxComments, req.CookiesFile)
	if err != nil {
		logger.WithError(err).Warn("comment fetch failed, continuing without comments")
		p.update(t.ID, model.StepFetchingComments, progressCommentsDone, "Could not fetch comments: "+err.Error())
		return
	}
	sections.Comments = set
	p.update(t.ID, model.StepFetchingComments, progressCommentsDone, "Comments fetched")

	if len(set.Comments) == 0 {
		return
	}

	p.update(t.ID, model.StepAnalysing, progressAnalyseStart, "Running sentiment analysis...")
	if s, err := p.sentiment.AnalyzeComments(set.Comments); err != nil {
		logger.WithError(err).Warn("sentiment analysis failed")
	} else {
		sections.Sentiment = s
	}

	p.update(t.ID, model.StepAnalysing, progressAnalyseMid, "Extracting key talking points...")
	if kp, err := p.keyPoints.FromComments(set.Comments); err != nil {
		logger.WithError(err).Warn("comment key point extraction failed")
	} else {
		sections.CommentKeyPoints = kp
	}
	p.update(t.ID, model.StepAnalysing, progressAnalyseDone, "Analysis complete")
}

func (p *Pipeline) update(id string, step model.Step, progress int, message string) {
	if err := p.registry.Update(id, step, progress, message); err != nil {
		log.WithField("task", id).WithError(err).Debug("progress update dropped")
	}
}

// cancelled is the between-stage cooperative cancellation check.
func cancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
