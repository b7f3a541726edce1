// Package binlocate resolves the ffmpeg/ffprobe binaries per spec.md §6's
// search order, in the style of the ffmpeg transcoder plugin's
// detectFFmpegPath: walk a fixed list of candidates and cache the first hit.
package binlocate

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

var (
	mu    sync.Mutex
	cache = map[string]string{}
)

// commonDirs mirrors spec.md §6's final fallback tier.
var commonDirs = []string{
	"/opt/homebrew/bin",
	"/usr/local/bin",
	"/opt/local/bin",
	"/usr/bin",
}

// Resolve finds the path to name ("ffmpeg" or "ffprobe") using, in order:
// the primary env var, the secondary env var, a bundled relative path next
// to the running executable, then the common install directories. The first
// successful resolution is cached for the process lifetime.
func Resolve(name, primaryEnv, secondaryEnv, override string) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	if override != "" {
		if p, err := verify(override); err == nil {
			return p, nil
		}
	}

	if cached, ok := cache[name]; ok {
		return cached, nil
	}

	candidates := make([]string, 0, len(commonDirs)+4)
	if v := os.Getenv(primaryEnv); v != "" {
		candidates = append(candidates, v)
	}
	if v := os.Getenv(secondaryEnv); v != "" {
		candidates = append(candidates, v)
	}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), name))
	}
	for _, dir := range commonDirs {
		candidates = append(candidates, filepath.Join(dir, name))
	}

	for _, c := range candidates {
		if p, err := verify(c); err == nil {
			cache[name] = p
			return p, nil
		}
	}

	// Last resort: rely on PATH resolution.
	if p, err := exec.LookPath(name); err == nil {
		cache[name] = p
		return p, nil
	}

	return "", fmt.Errorf("%s: not found via env, bundled path, or common directories", name)
}

func verify(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return path, nil
}

// Reset clears the resolution cache. Test-only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cache = map[string]string{}
}
