// Package transcode drives the ffmpeg CLI for the two stream-copy stages of a
// job: concatenating the segment manifest into one container, then repackaging
// that container into the requested file or a fragmented stream.
package transcode

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/datallboy/gosplice/internal/domain"
	"github.com/datallboy/gosplice/internal/infra/logger"
)

const (
	StageMerge   = "merge"
	StagePackage = "package"
	StageStream  = "stream"

	progressTimePrefix = "out_time_us="
	tailLines          = 20
)

var progressLine = regexp.MustCompile(`^[a-z0-9_]+=`)

// ProgressFunc receives the output timestamp ffmpeg has reached in a stage.
type ProgressFunc func(stage string, outTime time.Duration)

type FFmpeg struct {
	BinaryPath string
	// Timeout bounds each invocation. 0 disables the ceiling.
	Timeout time.Duration
	Logger  *logger.Logger
}

func NewFFmpeg(binaryPath string, timeout time.Duration, log *logger.Logger) *FFmpeg {
	return &FFmpeg{BinaryPath: binaryPath, Timeout: timeout, Logger: log}
}

// MergeArgs concatenates the manifest entries without re-encoding.
func MergeArgs(manifestPath, outPath string) []string {
	return []string{
		"-y", "-hide_banner", "-nostats",
		"-progress", "pipe:2",
		"-f", "concat", "-safe", "0",
		"-i", manifestPath,
		"-c:a", "copy", "-c:v", "copy",
		outPath,
	}
}

// PackageArgs rewraps into the container implied by outPath's extension.
func PackageArgs(inPath, outPath string) []string {
	return []string{
		"-y", "-hide_banner", "-nostats",
		"-progress", "pipe:2",
		"-i", inPath,
		"-c:a", "copy", "-c:v", "copy",
		outPath,
	}
}

// StreamArgs writes a fragmented container to stdout so it plays while still arriving.
func StreamArgs(inPath, format string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", inPath,
		"-c:a", "copy", "-c:v", "copy",
		"-movflags", "frag_keyframe+empty_moov",
		"-bsf:a", "aac_adtstoasc",
		"-f", format,
		"pipe:1",
	}
}

func (f *FFmpeg) Merge(ctx context.Context, manifestPath, outPath string, progress ProgressFunc) error {
	return f.run(ctx, StageMerge, MergeArgs(manifestPath, outPath), progress)
}

func (f *FFmpeg) Package(ctx context.Context, inPath, outPath string, progress ProgressFunc) error {
	return f.run(ctx, StagePackage, PackageArgs(inPath, outPath), progress)
}

func (f *FFmpeg) run(ctx context.Context, stage string, args []string, progress ProgressFunc) error {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	f.Logger.Debug("Running %s %s", f.BinaryPath, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, f.BinaryPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &domain.MergeTranscodeError{Stage: stage, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return &domain.MergeTranscodeError{Stage: stage, Err: err}
	}

	// stderr must be drained before Wait
	tail := scanProgress(stderr, stage, progress)

	if err := cmd.Wait(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", f.Timeout, err)
		}
		return &domain.MergeTranscodeError{Stage: stage, Err: err, Output: tail}
	}

	return nil
}

// Stream starts the repackaging stage and returns ffmpeg's stdout. A failed exit
// surfaces from Read in place of io.EOF. Closing before EOF stops ffmpeg.
func (f *FFmpeg) Stream(ctx context.Context, inPath, format string) (io.ReadCloser, error) {
	ctx, cancel := f.withTimeout(ctx)

	cmd := exec.CommandContext(ctx, f.BinaryPath, StreamArgs(inPath, format)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &domain.MergeTranscodeError{Stage: StageStream, Err: err}
	}

	sr := &streamReader{r: stdout, cmd: cmd, cancel: cancel}
	cmd.Stderr = &sr.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &domain.MergeTranscodeError{Stage: StageStream, Err: err}
	}

	return sr, nil
}

func (f *FFmpeg) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.Timeout > 0 {
		return context.WithTimeout(ctx, f.Timeout)
	}
	return context.WithCancel(ctx)
}

type streamReader struct {
	r      io.ReadCloser
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr bytes.Buffer

	once    sync.Once
	waitErr error
}

func (s *streamReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err == io.EOF {
		if werr := s.wait(); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (s *streamReader) Close() error {
	// stops ffmpeg if the consumer gave up before EOF
	s.cancel()
	_ = s.wait()
	return nil
}

func (s *streamReader) wait() error {
	s.once.Do(func() {
		err := s.cmd.Wait()
		s.cancel()
		if err != nil {
			s.waitErr = &domain.MergeTranscodeError{
				Stage:  StageStream,
				Err:    err,
				Output: strings.TrimSpace(s.stderr.String()),
			}
		}
	})
	return s.waitErr
}

// scanProgress forwards out_time_us updates and returns the last non-progress lines.
func scanProgress(r io.Reader, stage string, progress ProgressFunc) string {
	var tail []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, progressTimePrefix) {
			us, err := strconv.ParseInt(strings.TrimPrefix(line, progressTimePrefix), 10, 64)
			if err == nil && us >= 0 && progress != nil {
				progress(stage, time.Duration(us)*time.Microsecond)
			}
			continue
		}

		if progressLine.MatchString(line) {
			continue
		}

		tail = append(tail, line)
		if len(tail) > tailLines {
			tail = tail[1:]
		}
	}

	return strings.Join(tail, "\n")
}
