package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"github.com/iconidentify/mediarelay/internal/config"
	"github.com/iconidentify/mediarelay/internal/domain"
)

const outputTemplate = "%(title)s [%(id)s].%(ext)s"

// YTDLP wraps the yt-dlp binary as both the Metadata and Fetcher
// provider. Probes are paced by a rate limiter so a burst of requests
// does not fork an unbounded number of subprocesses.
type YTDLP struct {
	binPath string
	cfg     config.FetchConfig
	saveDir string
	probes  *rate.Limiter
	logger  *slog.Logger
}

// NewYTDLP locates the yt-dlp binary and returns the provider.
func NewYTDLP(cfg config.FetchConfig, saveDir string, logger *slog.Logger) (*YTDLP, error) {
	binPath, err := exec.LookPath("yt-dlp")
	if err != nil {
		return nil, fmt.Errorf("yt-dlp not found in PATH: %w", err)
	}

	rps := cfg.ProbesPerSecond
	if rps <= 0 {
		rps = 2
	}

	return &YTDLP{
		binPath: binPath,
		cfg:     cfg,
		saveDir: saveDir,
		probes:  rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}, nil
}

// Probe runs a metadata-only extraction and parses the JSON payload.
func (y *YTDLP) Probe(ctx context.Context, url string) (*MediaInfo, error) {
	if err := y.probes.Wait(ctx); err != nil {
		return nil, &domain.MetadataError{URL: url, Err: err}
	}

	probeCtx := ctx
	if y.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, y.cfg.ProbeTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(probeCtx, y.binPath, "-J", "--no-playlist", url)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return nil, &domain.MetadataError{URL: url, Err: fmt.Errorf("%w: %s", err, firstLine(stderr.String()))}
	}

	info, err := ParseMediaInfo(output)
	if err != nil {
		return nil, &domain.MetadataError{URL: url, Err: err}
	}
	return info, nil
}

// ParseMediaInfo decodes the metadata tool's JSON payload.
func ParseMediaInfo(payload []byte) (*MediaInfo, error) {
	var info MediaInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, fmt.Errorf("decode metadata payload: %w", err)
	}
	if info.ID == "" && info.Extractor == "" && info.ExtractorKey == "" {
		return nil, errors.New("metadata payload carries no identity")
	}
	return &info, nil
}

// Fetch downloads a URL and returns the path of the produced file.
func (y *YTDLP) Fetch(ctx context.Context, req FetchRequest) (string, error) {
	fetchCtx := ctx
	if y.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, y.cfg.FetchTimeout)
		defer cancel()
	}

	args := y.buildArgs(req)
	cmd := exec.CommandContext(fetchCtx, y.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", domain.NewFetchError(req.Selector, stderr.String(), err)
	}

	path, err := pickOutputPath(stdout.String())
	if err != nil {
		return "", domain.NewFetchError(req.Selector, stderr.String(), err)
	}

	y.logger.Debug("fetch complete", "url", req.URL, "selector", req.Selector, "path", path)
	return path, nil
}

func (y *YTDLP) buildArgs(req FetchRequest) []string {
	var args []string

	if req.ExtractAudio {
		if req.AudioFormat == "m4a" {
			args = append(args, "-f", "bestaudio[ext=m4a]/bestaudio")
		}
		args = append(args, "-x", "--audio-format", req.AudioFormat, "--audio-quality", "0")
	} else {
		args = append(args, "-f", req.Selector)
		if req.MergeFormat != "" {
			args = append(args, "--merge-output-format", req.MergeFormat)
		}
	}

	args = append(args,
		"--no-playlist", "--no-simulate", "--restrict-filenames",
		"--print", "after_move:filepath",
		"-o", filepath.Join(y.saveDir, outputTemplate),
	)

	if req.MaxDownloads > 0 {
		args = append(args, "--max-downloads", fmt.Sprintf("%d", req.MaxDownloads))
	}
	if req.UserAgent != "" {
		args = append(args, "--user-agent", req.UserAgent)
	}
	if req.Referer != "" {
		args = append(args, "--add-header", "Referer: "+req.Referer)
	}
	if req.UseCookies {
		if y.cfg.CookiesFile != "" {
			args = append(args, "--cookies", y.cfg.CookiesFile)
		} else if y.cfg.CookiesFromBrowser != "" {
			args = append(args, "--cookies-from-browser", y.cfg.CookiesFromBrowser)
		}
	}

	return append(args, req.URL)
}

// pickOutputPath extracts the produced file path from the tool's stdout
// and verifies it exists on disk. The tool prints one path per
// downloaded file; playlists are disabled so more than one is a tool
// anomaly and the last is used.
func pickOutputPath(stdout string) (string, error) {
	var paths []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	if len(paths) == 0 {
		return "", errors.New("fetch tool did not report an output file path")
	}
	path := paths[len(paths)-1]
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("fetch tool reported a missing file %q: %w", path, err)
	}
	return path, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
