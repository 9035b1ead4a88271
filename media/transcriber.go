package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"reelscope/config"
	"reelscope/model"
	"reelscope/platform"
)

// ModelSizes maps each accepted whisper model size to a short description
// of its speed/accuracy tradeoff.
var ModelSizes = map[string]string{
	"tiny":     "Fastest, least accurate (~1GB RAM)",
	"base":     "Good balance of speed and accuracy (~1GB RAM)",
	"small":    "Better accuracy, moderate speed (~2GB RAM)",
	"medium":   "High accuracy, slower (~5GB RAM)",
	"large-v3": "Best accuracy, slowest (~10GB RAM)",
}

// ValidModelSize reports whether size names a known whisper model. The
// empty string is accepted and means "use the configured default".
func ValidModelSize(size string) bool {
	if size == "" {
		return true
	}
	_, ok := ModelSizes[size]
	return ok
}

// Transcriber produces speech-to-text by driving a whisper CLI that emits
// JSON output (openai-whisper and whisper-ctranslate2 both do).
type Transcriber struct {
	cfg *config.Config
}

func NewTranscriber(cfg *config.Config) (*Transcriber, error) {
	if _, err := exec.LookPath(cfg.WhisperBin); err != nil {
		return nil, fmt.Errorf("whisper binary not found or not in PATH: %s", cfg.WhisperBin)
	}
	return &Transcriber{cfg: cfg}, nil
}

type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type whisperOutput struct {
	Text                string           `json:"text"`
	Segments            []whisperSegment `json:"segments"`
	Language            string           `json:"language"`
	LanguageProbability float64          `json:"language_probability"`
}

// Transcribe runs whisper over the media file's audio. language may be
// empty, in which case the model auto-detects it.
func (t *Transcriber) Transcribe(ctx context.Context, mediaPath, modelSize, language string) (*model.Transcription, error) {
	if modelSize == "" {
		modelSize = t.cfg.DefaultModel
	}
	if !ValidModelSize(modelSize) {
		return nil, fmt.Errorf("unknown model size %q", modelSize)
	}

	outDir, err := os.MkdirTemp("", "reelscope_whisper_")
	if err != nil {
		return nil, fmt.Errorf("could not create transcription work directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{
		"--model", modelSize,
		"--output_format", "json",
		"--output_dir", outDir,
	}
	if language != "" {
		args = append(args, "--language", language)
	}
	args = append(args, mediaPath)

	cmd := exec.CommandContext(ctx, t.cfg.WhisperBin, args...)
	var outputBuf bytes.Buffer
	cmd.Stdout = &outputBuf
	cmd.Stderr = &outputBuf

	log.WithField("model", modelSize).Debugf("executing %s %s", t.cfg.WhisperBin, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("whisper failed: %s", errorTail(outputBuf.String(), err))
	}

	stem := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	raw, err := os.ReadFile(filepath.Join(outDir, stem+".json"))
	if err != nil {
		return nil, fmt.Errorf("whisper produced no JSON output: %w", err)
	}

	var out whisperOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("could not parse whisper output: %w", err)
	}

	return buildTranscription(out), nil
}

func buildTranscription(out whisperOutput) *model.Transcription {
	segments := make([]model.Segment, 0, len(out.Segments))
	parts := make([]string, 0, len(out.Segments))
	for _, s := range out.Segments {
		text := strings.TrimSpace(s.Text)
		segments = append(segments, model.Segment{
			Start:          s.Start,
			End:            s.End,
			Text:           text,
			StartFormatted: platform.FormatTimestamp(s.Start),
			EndFormatted:   platform.FormatTimestamp(s.End),
		})
		parts = append(parts, text)
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		text = strings.Join(parts, " ")
	}

	return &model.Transcription{
		Text:                text,
		Segments:            segments,
		Language:            out.Language,
		LanguageProbability: out.LanguageProbability,
		Formatted:           FormatSegments(segments, true),
		FormattedPlain:      FormatSegments(segments, false),
	}
}

// FormatSegments renders transcription segments as readable lines,
// optionally prefixed with their timestamps.
func FormatSegments(segments []model.Segment, includeTimestamps bool) string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		if includeTimestamps {
			lines = append(lines, fmt.Sprintf("[%s - %s] %s", seg.StartFormatted, seg.EndFormatted, seg.Text))
		} else {
			lines = append(lines, seg.Text)
		}
	}
	return strings.Join(lines, "\n")
}
