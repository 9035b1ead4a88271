package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelscope/model"
	"reelscope/platform"
	"reelscope/task"
)

type mockDownloader struct {
	video *model.VideoInfo
	err   error
}

func (m *mockDownloader) Download(ctx context.Context, rawURL, cookiesFile string, progress func(float64, string)) (*model.VideoInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	if progress != nil {
		progress(0.5, "Downloading...")
		progress(1.0, "Download complete, processing...")
	}
	v := *m.video
	v.URL = rawURL
	v.Platform = string(platform.Detect(rawURL))
	return &v, nil
}

type mockTranscriber struct {
	transcription *model.Transcription
	err           error
	gotModelSize  string
}

func (m *mockTranscriber) Transcribe(ctx context.Context, mediaPath, modelSize, language string) (*model.Transcription, error) {
	m.gotModelSize = modelSize
	if m.err != nil {
		return nil, m.err
	}
	return m.transcription, nil
}

type mockFetcher struct {
	set *model.CommentSet
	err error
}

func (m *mockFetcher) Fetch(ctx context.Context, rawURL, username, password string, maxComments int, cookiesFile string) (*model.CommentSet, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.set, nil
}

type mockSentiment struct {
	err error
}

func (m *mockSentiment) AnalyzeComments(comments []model.Comment) (*model.Sentiment, error) {
	if m.err != nil {
		return nil, m.err
	}
	dist := map[string]int{"Positive": len(comments), "Negative": 0, "Neutral": 0}
	return &model.Sentiment{Distribution: dist, Summary: "Overall sentiment: Positive"}, nil
}

type mockKeyPoints struct {
	err error
}

func (m *mockKeyPoints) FromComments(comments []model.Comment) (*model.KeyPoints, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.KeyPoints{SummaryPoints: []string{"comments"}}, nil
}

func (m *mockKeyPoints) FromTranscript(text string) (*model.KeyPoints, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.KeyPoints{SummaryPoints: []string{"transcript"}}, nil
}

type fixtures struct {
	registry   *task.Registry
	downloader *mockDownloader
	trans      *mockTranscriber
	fetcher    *mockFetcher
	sentiment  *mockSentiment
	keyPoints  *mockKeyPoints
}

func newFixtures() *fixtures {
	return &fixtures{
		registry: task.NewRegistry(),
		downloader: &mockDownloader{video: &model.VideoInfo{
			Path:  "/tmp/video_test.mp4",
			Title: "A video",
		}},
		trans: &mockTranscriber{transcription: &model.Transcription{
			Text:     "hello world",
			Language: "en",
		}},
		fetcher: &mockFetcher{set: &model.CommentSet{
			Comments: []model.Comment{
				{Text: "love it", Owner: "a", Likes: 3},
				{Text: "so cool", Owner: "b", Likes: 1},
			},
			CommentCount: 2,
		}},
		sentiment: &mockSentiment{},
		keyPoints: &mockKeyPoints{},
	}
}

func (f *fixtures) pipeline() *Pipeline {
	return New(f.registry, f.downloader, f.trans, f.fetcher, f.sentiment, f.keyPoints)
}

func (f *fixtures) startTask(t *testing.T, req model.Request) model.Task {
	t.Helper()
	created := f.registry.Create(req)
	require.NoError(t, f.registry.Start(created.ID))
	created.Status = model.StatusRunning
	return created
}

func TestRun_InstagramReel(t *testing.T) {
	f := newFixtures()
	tk := f.startTask(t, model.Request{URL: "https://instagram.com/reel/XYZ", ModelSize: "tiny"})

	res, err := f.pipeline().Run(context.Background(), tk)
	require.NoError(t, err)

	assert.Equal(t, "instagram", res.Platform)
	assert.True(t, res.IsInstagram)
	assert.True(t, res.HasVideo)
	assert.Equal(t, "tiny", f.trans.gotModelSize)
	require.NotNil(t, res.Transcription)
	require.NotNil(t, res.Instagram)
	require.NotNil(t, res.Sentiment)
	require.NotNil(t, res.KeyPoints)
	require.NotNil(t, res.TranscriptionKeyPoints)

	total := 0
	for _, n := range res.Sentiment.Distribution {
		total += n
	}
	assert.Equal(t, res.Instagram.CommentCount, total, "distribution sums to the comment count")

	got, _ := f.registry.Get(tk.ID)
	assert.Equal(t, model.StepAnalysing, got.Step)
	assert.Equal(t, 95, got.Progress)
}

func TestRun_YouTubeSkipsCommentStages(t *testing.T) {
	f := newFixtures()
	tk := f.startTask(t, model.Request{URL: "https://youtube.com/watch?v=abc", ModelSize: "base"})

	res, err := f.pipeline().Run(context.Background(), tk)
	require.NoError(t, err)

	assert.Equal(t, "youtube", res.Platform)
	assert.False(t, res.IsInstagram)
	assert.Nil(t, res.Sentiment, "non-instagram results never carry a sentiment section")
	assert.Nil(t, res.Instagram)
	assert.Nil(t, res.KeyPoints)
	assert.NotNil(t, res.Transcription)
	assert.NotNil(t, res.TranscriptionKeyPoints)

	got, _ := f.registry.Get(tk.ID)
	assert.Equal(t, model.StepTranscribing, got.Step, "comment stages never entered")
}

func TestRun_DownloadFailureIsFatal(t *testing.T) {
	f := newFixtures()
	f.downloader.err = errors.New("unsupported URL")
	tk := f.startTask(t, model.Request{URL: "https://example.com/nope"})

	res, err := f.pipeline().Run(context.Background(), tk)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "download failed")
}

func TestRun_TranscriptionFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "video_test.mp4")
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o644))

	f := newFixtures()
	f.downloader.video.Path = path
	f.trans.err = errors.New("model crashed")
	tk := f.startTask(t, model.Request{URL: "https://youtube.com/watch?v=abc"})

	res, err := f.pipeline().Run(context.Background(), tk)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "transcription failed")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "fatal paths drop the downloaded artifact")
}

func TestRun_CommentFetchFailureIsDegradedNotFatal(t *testing.T) {
	f := newFixtures()
	f.fetcher.err = errors.New("requires authentication")
	tk := f.startTask(t, model.Request{URL: "https://instagram.com/reel/XYZ"})

	res, err := f.pipeline().Run(context.Background(), tk)
	require.NoError(t, err, "comment fetch failure must not fail the task")

	assert.True(t, res.IsInstagram)
	assert.NotNil(t, res.Transcription, "transcript section survives")
	assert.Nil(t, res.Instagram)
	assert.Nil(t, res.Sentiment)
	assert.Nil(t, res.KeyPoints)
}

func TestRun_EmptyCommentsSkipAnalysis(t *testing.T) {
	f := newFixtures()
	f.fetcher.set = &model.CommentSet{Comments: []model.Comment{}}
	tk := f.startTask(t, model.Request{URL: "https://instagram.com/reel/XYZ"})

	res, err := f.pipeline().Run(context.Background(), tk)
	require.NoError(t, err)

	assert.NotNil(t, res.Instagram)
	assert.Nil(t, res.Sentiment)
	assert.Nil(t, res.KeyPoints)
}

func TestRun_AnalysisSubStepFailuresAreIndependent(t *testing.T) {
	t.Run("sentiment fails, key points survive", func(t *testing.T) {
		f := newFixtures()
		f.sentiment.err = errors.New("lexicon exploded")
		tk := f.startTask(t, model.Request{URL: "https://instagram.com/reel/XYZ"})

		res, err := f.pipeline().Run(context.Background(), tk)
		require.NoError(t, err)
		assert.Nil(t, res.Sentiment)
		assert.NotNil(t, res.KeyPoints)
	})

	t.Run("key points fail, sentiment survives", func(t *testing.T) {
		f := newFixtures()
		f.keyPoints.err = errors.New("no phrases")
		tk := f.startTask(t, model.Request{URL: "https://instagram.com/reel/XYZ"})

		res, err := f.pipeline().Run(context.Background(), tk)
		require.NoError(t, err)
		assert.NotNil(t, res.Sentiment)
		assert.Nil(t, res.KeyPoints)
		assert.Nil(t, res.TranscriptionKeyPoints, "same extractor, same failure")
	})
}

func TestRun_CancelledBetweenStages(t *testing.T) {
	f := newFixtures()
	ctx, cancel := context.WithCancel(context.Background())

	f.downloader.video = &model.VideoInfo{Path: "", Title: "A video"}
	downloader := f.downloader
	f.trans.err = nil

	// Cancel during the download; the orchestrator notices at the next
	// stage boundary.
	cancellingDownloader := downloaderFunc(func(c context.Context, u, cf string, p func(float64, string)) (*model.VideoInfo, error) {
		cancel()
		return downloader.Download(c, u, cf, p)
	})

	p := New(f.registry, cancellingDownloader, f.trans, f.fetcher, f.sentiment, f.keyPoints)
	tk := f.startTask(t, model.Request{URL: "https://youtube.com/watch?v=abc"})

	res, err := p.Run(ctx, tk)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

type downloaderFunc func(ctx context.Context, rawURL, cookiesFile string, progress func(float64, string)) (*model.VideoInfo, error)

func (f downloaderFunc) Download(ctx context.Context, rawURL, cookiesFile string, progress func(float64, string)) (*model.VideoInfo, error) {
	return f(ctx, rawURL, cookiesFile, progress)
}

func TestAggregate(t *testing.T) {
	t.Run("all sections absent", func(t *testing.T) {
		res := Aggregate(Sections{Platform: platform.Other})
		assert.Equal(t, "other", res.Platform)
		assert.False(t, res.IsInstagram)
		assert.False(t, res.HasVideo)
		assert.Nil(t, res.Video)
		assert.Nil(t, res.Transcription)
	})

	t.Run("instagram flags", func(t *testing.T) {
		res := Aggregate(Sections{
			Platform: platform.Instagram,
			Video:    &model.VideoInfo{Path: "/tmp/v.mp4"},
		})
		assert.True(t, res.IsInstagram)
		assert.True(t, res.HasVideo)
	})
}
