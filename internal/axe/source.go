// File: internal/axe/source.go
package axe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-a11y/internal/config"
)

// ErrEngineUnavailable is returned when the axe-core source cannot be loaded
// or does not expose axe.run in the page.
var ErrEngineUnavailable = errors.New("accessibility engine unavailable")

// Fetcher downloads a remote resource. *network.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// SourceLoader resolves audit.axe_source to the script text. Remote sources
// are cached on disk so repeated runs do not hit the CDN.
type SourceLoader struct {
	fetcher  Fetcher
	cacheDir string
	logger   *zap.Logger
}

// NewSourceLoader creates a loader. An empty cacheDir disables the disk cache.
func NewSourceLoader(fetcher Fetcher, cacheDir string, logger *zap.Logger) *SourceLoader {
	return &SourceLoader{
		fetcher:  fetcher,
		cacheDir: cacheDir,
		logger:   logger.Named("axe_source"),
	}
}

// Load returns the engine source for a file path or an http(s) URL.
func (l *SourceLoader) Load(ctx context.Context, source string) (string, error) {
	if isRemote(source) {
		return l.loadRemote(ctx, source)
	}

	path, err := config.ExpandPath(source)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %v", ErrEngineUnavailable, path, err)
	}
	l.logger.Debug("Loaded engine from file.", zap.String("path", path), zap.Int("bytes", len(data)))
	return validateSource(data, path)
}

func (l *SourceLoader) loadRemote(ctx context.Context, source string) (string, error) {
	cachePath, err := l.cachePath(source)
	if err != nil {
		l.logger.Warn("Engine cache disabled.", zap.Error(err))
	}

	if cachePath != "" {
		if data, err := os.ReadFile(cachePath); err == nil && len(data) > 0 {
			l.logger.Debug("Using cached engine.", zap.String("path", cachePath))
			return validateSource(data, cachePath)
		}
	}

	if l.fetcher == nil {
		return "", fmt.Errorf("%w: no fetcher configured for %s", ErrEngineUnavailable, source)
	}
	l.logger.Info("Downloading accessibility engine.", zap.String("url", source))
	data, err := l.fetcher.Fetch(ctx, source)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	script, err := validateSource(data, source)
	if err != nil {
		return "", err
	}

	if cachePath != "" {
		if err := writeCache(cachePath, data); err != nil {
			l.logger.Warn("Failed to cache engine source.", zap.String("path", cachePath), zap.Error(err))
		}
	}
	return script, nil
}

// cachePath derives a stable file name from the source URL, so a changed pin
// never reuses an old download.
func (l *SourceLoader) cachePath(source string) (string, error) {
	if l.cacheDir == "" {
		return "", nil
	}
	dir, err := config.ExpandPath(l.cacheDir)
	if err != nil {
		return "", err
	}
	name := "axe-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(source)).String() + ".js"
	return filepath.Join(dir, name), nil
}

// writeCache writes through a temp file so a crash never leaves a truncated
// script behind.
func writeCache(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".axe-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func validateSource(data []byte, origin string) (string, error) {
	script := string(data)
	if strings.TrimSpace(script) == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrEngineUnavailable, origin)
	}
	if !strings.Contains(script, "axe") {
		return "", fmt.Errorf("%w: %s does not look like axe-core", ErrEngineUnavailable, origin)
	}
	return script, nil
}

func isRemote(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
