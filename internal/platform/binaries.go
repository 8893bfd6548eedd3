package platform

import (
	"fmt"
	"os"
	"os/exec"
)

// FFmpegEnv overrides every other way of locating ffmpeg.
const FFmpegEnv = "FFMPEG_PATH"

// ResolveFFmpeg picks the ffmpeg binary: $FFMPEG_PATH, then the configured path,
// then whatever "ffmpeg" resolves to in PATH.
func ResolveFFmpeg(configured string) (string, error) {
	candidate := os.Getenv(FFmpegEnv)
	if candidate == "" {
		candidate = configured
	}

	if candidate != "" {
		path, err := exec.LookPath(candidate)
		if err != nil {
			return "", fmt.Errorf("ffmpeg binary %q is not executable: %w", candidate, err)
		}
		return path, nil
	}

	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("required dependency: 'ffmpeg' not found in PATH (set %s to override)", FFmpegEnv)
	}
	return path, nil
}

// ValidateDependencies fails fast when the external tools the pipeline needs are missing.
func ValidateDependencies(configuredFFmpeg string) (string, error) {
	return ResolveFFmpeg(configuredFFmpeg)
}
