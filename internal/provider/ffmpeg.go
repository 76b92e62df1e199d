package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Fallback dimensions when ffprobe cannot inspect a file.
const (
	defaultWidth  = 640
	defaultHeight = 360
)

// animPreset is one rung of the silent-animation quality ladder.
type animPreset struct {
	width int
	fps   int
	crf   int
}

// The ladder is fixed: step down until the output fits the ceiling.
var animLadder = []animPreset{
	{480, 30, 23},
	{360, 30, 24},
	{320, 24, 26},
}

// gifPreset is one rung of the GIF ladder.
type gifPreset struct {
	width int
	fps   int
}

var gifLadder = []gifPreset{
	{480, 12},
	{360, 10},
	{320, 8},
}

// FFmpeg implements Transcoder on top of the ffmpeg/ffprobe binaries.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

// NewFFmpeg locates ffmpeg and ffprobe in PATH.
func NewFFmpeg(logger *slog.Logger) (*FFmpeg, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      logger,
	}, nil
}

// ProbeDimensions inspects the first video stream. Any failure degrades
// to zero duration with a fixed default frame size.
func (f *FFmpeg) ProbeDimensions(ctx context.Context, path string) Dimensions {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,duration",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		f.logger.Warn("ffprobe failed, using default dimensions", "path", path, "error", err)
		return Dimensions{Width: defaultWidth, Height: defaultHeight}
	}

	dims, err := parseProbePayload(output)
	if err != nil {
		f.logger.Warn("ffprobe payload unusable, using default dimensions", "path", path, "error", err)
		return Dimensions{Width: defaultWidth, Height: defaultHeight}
	}
	return dims
}

func parseProbePayload(payload []byte) (Dimensions, error) {
	type probeStream struct {
		Width    int    `json:"width"`
		Height   int    `json:"height"`
		Duration string `json:"duration"`
	}
	type probeOutput struct {
		Streams []probeStream `json:"streams"`
	}

	var parsed probeOutput
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return Dimensions{}, fmt.Errorf("decode ffprobe payload: %w", err)
	}
	if len(parsed.Streams) == 0 {
		return Dimensions{}, fmt.Errorf("no video stream in ffprobe payload")
	}

	s := parsed.Streams[0]
	dims := Dimensions{Width: s.Width, Height: s.Height}
	if s.Duration != "" {
		if dur, err := strconv.ParseFloat(s.Duration, 64); err == nil {
			dims.Duration = int(dur)
		}
	}
	if dims.Width == 0 {
		dims.Width = defaultWidth
	}
	if dims.Height == 0 {
		dims.Height = defaultHeight
	}
	return dims, nil
}

// MakeThumbnail grabs a single frame, trying a few seek offsets because
// very short clips have no frame at 2s. Returns "" when every attempt
// fails.
func (f *FFmpeg) MakeThumbnail(ctx context.Context, path string) string {
	outPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".thumb.jpg"

	for _, seek := range []string{"00:00:02", "00:00:00.5", "00:00:00"} {
		cmd := exec.CommandContext(ctx, f.ffmpegPath,
			"-y", "-hide_banner", "-loglevel", "error",
			"-ss", seek, "-i", path, "-frames:v", "1",
			"-vf", `scale=min(320\,iw):min(320\,ih):force_original_aspect_ratio=decrease`,
			"-q:v", "5", outPath,
		)
		if err := cmd.Run(); err != nil {
			continue
		}
		stat, err := os.Stat(outPath)
		if err != nil {
			continue
		}
		// Platform caps thumbnails at 200 KB; recompress once if over.
		if stat.Size() > 200*1024 {
			recompress := exec.CommandContext(ctx, f.ffmpegPath,
				"-y", "-hide_banner", "-loglevel", "error",
				"-i", outPath,
				"-vf", `scale=min(320\,iw):min(320\,ih):force_original_aspect_ratio=decrease`,
				"-q:v", "10", outPath,
			)
			_ = recompress.Run()
		}
		return outPath
	}

	f.logger.Warn("thumbnail generation failed", "path", path)
	return ""
}

// ToSilentAnimation strips audio and re-encodes through the preset
// ladder, returning as soon as an output fits targetSize. The last
// rung's output is returned even when it is still oversize.
func (f *FFmpeg) ToSilentAnimation(ctx context.Context, path string, targetSize int64) (string, error) {
	outPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".anim.mp4"

	var lastErr error
	for _, preset := range animLadder {
		cmd := exec.CommandContext(ctx, f.ffmpegPath,
			"-y", "-hide_banner", "-loglevel", "error",
			"-i", path, "-an",
			"-vf", fmt.Sprintf(`scale=min(%d\,iw):-2:flags=lanczos,fps=%d`, preset.width, preset.fps),
			"-c:v", "libx264", "-pix_fmt", "yuv420p", "-profile:v", "baseline",
			"-movflags", "+faststart", "-crf", strconv.Itoa(preset.crf),
			outPath,
		)
		if err := cmd.Run(); err != nil {
			lastErr = fmt.Errorf("animation encode %dp: %w", preset.width, err)
			continue
		}
		stat, err := os.Stat(outPath)
		if err != nil {
			lastErr = err
			continue
		}
		if stat.Size() <= targetSize {
			return outPath, nil
		}
		f.logger.Info("animation still oversize, stepping down",
			"width", preset.width,
			"size", stat.Size(),
			"target", targetSize,
		)
	}

	if _, err := os.Stat(outPath); err == nil {
		// Ladder exhausted: hand back the smallest attempt.
		return outPath, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("animation encode produced no output")
	}
	return "", lastErr
}

// ToGIF converts via the two-pass palette pipeline, stepping the ladder
// down until the GIF fits sizeLimit. A final 320px/6fps attempt is kept
// regardless of size.
func (f *FFmpeg) ToGIF(ctx context.Context, path string, sizeLimit int64) (string, error) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	palette := base + "_palette.png"
	outPath := base + ".gif"
	defer os.Remove(palette)

	makeGIF := func(width, fps int) error {
		vf := fmt.Sprintf("fps=%d,scale=%d:-1:flags=lanczos", fps, width)

		gen := exec.CommandContext(ctx, f.ffmpegPath,
			"-y", "-i", path, "-vf", vf+",palettegen", palette)
		if err := gen.Run(); err != nil {
			return fmt.Errorf("palette generation: %w", err)
		}

		use := exec.CommandContext(ctx, f.ffmpegPath,
			"-y", "-i", path, "-i", palette,
			"-filter_complex", vf+"[x];[x][1:v]paletteuse=dither=sierra2_4a",
			"-loop", "0", outPath)
		if err := use.Run(); err != nil {
			return fmt.Errorf("palette use: %w", err)
		}
		return nil
	}

	for _, preset := range gifLadder {
		if err := makeGIF(preset.width, preset.fps); err != nil {
			return "", err
		}
		stat, err := os.Stat(outPath)
		if err != nil {
			return "", err
		}
		if stat.Size() <= sizeLimit {
			return outPath, nil
		}
		os.Remove(outPath)
	}

	if err := makeGIF(320, 6); err != nil {
		return "", err
	}
	return outPath, nil
}
