package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/lithammer/shortuuid/v4"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"

	"reelscope/config"
	"reelscope/model"
	"reelscope/platform"
)

const downloadUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// yt-dlp progress lines look like "[download]  42.3% of 12.34MiB at ...".
var progressRe = regexp.MustCompile(`\[download\]\s+([\d.]+)%`)

// Downloader fetches media from a URL by driving the yt-dlp binary.
type Downloader struct {
	cfg       *config.Config
	extraArgs []string
}

func NewDownloader(cfg *config.Config) (*Downloader, error) {
	if _, err := exec.LookPath(cfg.YTDLPBin); err != nil {
		return nil, fmt.Errorf("yt-dlp binary not found or not in PATH: %s", cfg.YTDLPBin)
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create download directory: %w", err)
	}

	// Operator-supplied passthrough flags, split without a shell.
	extraArgs, err := shlex.Split(cfg.YTDLPExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid YTDLP_EXTRA_ARGS: %w", err)
	}

	return &Downloader{cfg: cfg, extraArgs: extraArgs}, nil
}

// ytdlpInfo is the subset of yt-dlp's --print-json output we keep.
type ytdlpInfo struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Duration    float64 `json:"duration"`
	Thumbnail   string  `json:"thumbnail"`
	Uploader    string  `json:"uploader"`
}

// Download fetches the media at rawURL into the download directory and
// returns its descriptor. The progress callback, when non-nil, receives
// fractional progress in [0,1] as yt-dlp reports it.
func (d *Downloader) Download(ctx context.Context, rawURL, cookiesFile string, progress func(pct float64, msg string)) (*model.VideoInfo, error) {
	if err := d.checkResources(); err != nil {
		return nil, fmt.Errorf("insufficient system resources: %w", err)
	}

	base := fmt.Sprintf("video_%s", strings.ToLower(shortuuid.New()))
	args := d.buildArgs(base, cookiesFile, rawURL)

	cmd := exec.CommandContext(ctx, d.cfg.YTDLPBin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.WithField("url", rawURL).Debugf("executing %s %s", d.cfg.YTDLPBin, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start yt-dlp: %w", err)
	}

	// yt-dlp interleaves progress lines and, last, the info JSON on stdout.
	var info *ytdlpInfo
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if pct, ok := parseProgressLine(line); ok {
			if progress != nil {
				progress(pct/100, "Downloading...")
			}
			continue
		}
		if strings.HasPrefix(line, "{") {
			var parsed ytdlpInfo
			if err := json.Unmarshal([]byte(line), &parsed); err == nil {
				info = &parsed
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		// A cancelled or timed-out context kills the process; report the
		// context error so callers can tell it apart from a tool failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("yt-dlp failed: %s", errorTail(stderr.String(), err))
	}
	if progress != nil {
		progress(1.0, "Download complete, processing...")
	}

	path, err := locateDownload(d.cfg.DownloadDir, base)
	if err != nil {
		return nil, err
	}

	if fi, err := os.Stat(path); err == nil && fi.Size() > d.cfg.MaxDownloadSize {
		os.Remove(path)
		return nil, fmt.Errorf("downloaded file size %d exceeds limit of %d bytes", fi.Size(), d.cfg.MaxDownloadSize)
	}

	v := &model.VideoInfo{
		Path:     path,
		Title:    "Unknown",
		Uploader: "Unknown",
		Platform: string(platform.Detect(rawURL)),
		URL:      rawURL,
	}
	if info != nil {
		if info.Title != "" {
			v.Title = info.Title
		}
		if info.Uploader != "" {
			v.Uploader = info.Uploader
		}
		v.Description = info.Description
		v.Duration = info.Duration
		v.Thumbnail = info.Thumbnail
	}
	return v, nil
}

func (d *Downloader) buildArgs(base, cookiesFile, rawURL string) []string {
	args := []string{
		"--no-warnings",
		"--newline",
		"--print-json",
		"--socket-timeout", "30",
		"--retries", "5",
		"--fragment-retries", "5",
		"--user-agent", downloadUserAgent,
		"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
		"--merge-output-format", "mp4",
		"-o", filepath.Join(d.cfg.DownloadDir, base+".%(ext)s"),
	}
	if cookiesFile != "" {
		args = append(args, "--cookies", cookiesFile)
	}
	args = append(args, d.extraArgs...)
	return append(args, rawURL)
}

func parseProgressLine(line string) (float64, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return pct, true
}

// locateDownload finds the file yt-dlp actually produced; the merge step can
// change the extension, so try the common ones before globbing.
func locateDownload(dir, base string) (string, error) {
	for _, ext := range []string{"mp4", "webm", "mkv"} {
		candidate := filepath.Join(dir, base+"."+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	matches, _ := filepath.Glob(filepath.Join(dir, base+".*"))
	if len(matches) > 0 {
		return matches[0], nil
	}
	return "", fmt.Errorf("downloaded video file not found in %s", dir)
}

// errorTail trims huge tool output down to the part worth surfacing.
func errorTail(output string, err error) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return err.Error()
	}
	lines := strings.Split(output, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " ")
}

// checkResources verifies that the system has enough free resources to start a new job.
func (d *Downloader) checkResources() error {
	// CPU
	p, err := cpu.Percent(time.Second, false)
	if err != nil {
		log.WithError(err).Warn("could not get CPU usage")
	} else if len(p) > 0 && p[0] > (100.0-d.cfg.ThrottleCPU) {
		return fmt.Errorf("not enough idle CPU. Current usage: %.2f%%, Idle threshold: %.2f%%", p[0], d.cfg.ThrottleCPU)
	}

	// Memory
	vm, err := mem.VirtualMemory()
	if err != nil {
		log.WithError(err).Warn("could not get memory usage")
	} else if vm.Available < uint64(d.cfg.ThrottleFreeMem) {
		return fmt.Errorf("not enough free memory. Available: %d, Required: %d", vm.Available, d.cfg.ThrottleFreeMem)
	}

	// Disk
	du, err := disk.Usage(d.cfg.DownloadDir)
	if err != nil {
		log.WithError(err).Warn("could not get disk usage")
	} else if du.Free < uint64(d.cfg.ThrottleFreeDisk) {
		return fmt.Errorf("not enough free disk space. Available: %d, Required: %d", du.Free, d.cfg.ThrottleFreeDisk)
	}
	return nil
}
