package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Archive keeps every captured frame on disk as
// screenshot_YYYYmmdd_HHMMSS.png
type Archive struct {
	dir string
	now func() time.Time
}

// NewArchive creates the directory if needed
func NewArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot directory %s: %w", dir, err)
	}
	return &Archive{dir: dir, now: time.Now}, nil
}

// Dir returns the archive directory
func (a *Archive) Dir() string {
	return a.dir
}

// Save writes one frame and returns its path
func (a *Archive) Save(frame []byte) (string, error) {
	name := fmt.Sprintf("screenshot_%s.png", a.now().Format("20060102_150405"))
	path := filepath.Join(a.dir, name)
	if err := os.WriteFile(path, frame, 0o644); err != nil {
		return "", fmt.Errorf("failed to save screenshot: %w", err)
	}
	return path, nil
}

// Archiving wraps a Source so every successful frame is also saved. Save
// failures are logged and the frame is still returned.
func Archiving(src Source, archive *Archive, logger *zap.Logger) Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return SourceFunc(func(ctx context.Context) ([]byte, error) {
		frame, err := src.Capture(ctx)
		if err != nil {
			return nil, err
		}
		path, saveErr := archive.Save(frame)
		if saveErr != nil {
			logger.Warn("failed to archive screenshot", zap.Error(saveErr))
		} else {
			logger.Debug("screenshot archived", zap.String("path", path))
		}
		return frame, nil
	})
}
