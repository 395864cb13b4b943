// Package capture provides PNG screen frames for the screen analyzer.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"

	"github.com/kbinani/screenshot"
)

// ErrUnavailable is returned when the display can never be captured, such
// as in a headless session. A failed grab of an existing display is not
// ErrUnavailable.
var ErrUnavailable = errors.New("screen capture unavailable")

// Source yields one PNG-encoded frame per call
type Source interface {
	Capture(ctx context.Context) ([]byte, error)
}

// SourceFunc adapts a function to Source
type SourceFunc func(ctx context.Context) ([]byte, error)

// Capture implements Source
func (f SourceFunc) Capture(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// ScreenSource captures one display of the local desktop
type ScreenSource struct {
	display int
}

// NewScreenSource checks that the display exists. Headless hosts get
// ErrUnavailable.
func NewScreenSource(display int) (*ScreenSource, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("%w: no active displays", ErrUnavailable)
	}
	if display < 0 || display >= n {
		return nil, fmt.Errorf("%w: display %d out of range (%d active)", ErrUnavailable, display, n)
	}
	return &ScreenSource{display: display}, nil
}

// Capture grabs the display and encodes it as PNG
func (s *ScreenSource) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := screenshot.GetDisplayBounds(s.display)
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: display %d has no bounds", ErrUnavailable, s.display)
	}

	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to capture display %d: %w", s.display, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
