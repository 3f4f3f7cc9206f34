package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	logger "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Logger"
	"golang.org/x/image/draw"
)

// Defaults match the viewfinder the attendance page used
const (
	DefaultFPS         = 10
	MaxFPS             = 60
	DefaultQRBoxWidth  = 250
	DefaultQRBoxHeight = 250
)

// QRBox is the size of the centred detection region
type QRBox struct {
	Width  int
	Height int
}

// Config holds the render loop settings
type Config struct {
	FPS   int
	QRBox QRBox
}

// DecodeFunc receives the text of every successful decode
type DecodeFunc func(ctx context.Context, text string)

// Scanner polls a FrameSource at a fixed rate and decodes QR codes inside the detection box
type Scanner struct {
	cfg    Config
	source FrameSource
	logger *logger.Logger

	// gozxing readers keep state between calls
	mu     sync.Mutex
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

func New(cfg Config, source FrameSource, log *logger.Logger) *Scanner {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.FPS > MaxFPS {
		cfg.FPS = MaxFPS
	}
	if cfg.QRBox.Width <= 0 {
		cfg.QRBox.Width = DefaultQRBoxWidth
	}
	if cfg.QRBox.Height <= 0 {
		cfg.QRBox.Height = DefaultQRBoxHeight
	}
	return &Scanner{
		cfg:    cfg,
		source: source,
		logger: log.WithComponent("scanner"),
		reader: qrcode.NewQRCodeReader(),
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Render runs the frame loop until ctx is cancelled or the source is exhausted.
// Each decode is handled in its own goroutine; Render waits for them before returning.
func (s *Scanner) Render(ctx context.Context, onDecoded DecodeFunc) error {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.FPS))
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	s.logger.Logger.Info().
		Int("fps", s.cfg.FPS).
		Stringer("qrbox", s.cfg.QRBox).
		Msg("Scanner started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frame, err := s.source.NextFrame(ctx)
		if err != nil {
			switch {
			case errors.Is(err, ErrNoFrame):
				continue
			case errors.Is(err, io.EOF):
				s.logger.Info("Frame source exhausted, scanner stopping")
				return nil
			case ctx.Err() != nil:
				return nil
			default:
				s.logger.Logger.Warn().Err(err).Msg("Skipping unreadable frame")
				continue
			}
		}

		text, ok := s.Decode(frame)
		if !ok {
			continue
		}

		s.logger.Logger.Debug().Str("text", text).Msg("QR decoded")
		wg.Add(1)
		go func() {
			defer wg.Done()
			onDecoded(ctx, text)
		}()
	}
}

// Decode looks for a QR code inside the centred detection box of frame
func (s *Scanner) Decode(frame image.Image) (string, bool) {
	region := CropCenter(frame, s.cfg.QRBox)
	if region == nil {
		return "", false
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(region)
	if err != nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.reader.Decode(bmp, s.hints)
	s.reader.Reset()
	if err != nil {
		return "", false
	}
	return result.GetText(), true
}

// CropCenter copies the centred box out of frame, clipped to the frame bounds. Returns nil for empty frames.
func CropCenter(frame image.Image, box QRBox) image.Image {
	b := frame.Bounds()
	if b.Empty() {
		return nil
	}

	w, h := box.Width, box.Height
	if w > b.Dx() {
		w = b.Dx()
	}
	if h > b.Dy() {
		h = b.Dy()
	}

	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2
	src := image.Rect(x0, y0, x0+w, y0+h)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Copy(dst, image.Point{}, frame, src, draw.Src, nil)
	return dst
}

func (b QRBox) String() string {
	return fmt.Sprintf("%dx%d", b.Width, b.Height)
}
