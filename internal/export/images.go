package export

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/cheque-extractor/constants"
	"github.com/joseph-ayodele/cheque-extractor/internal/common"
	"github.com/joseph-ayodele/cheque-extractor/internal/entity"
)

// User-facing download messages.
const (
	MsgNoResult    = "No results available for download."
	MsgNoImages    = "No images available for download."
	MsgNoImageData = "No image data available for download."
	MsgNoLabeled   = "No labeled image available for download."
)

var (
	// ErrNoImageData means the requested image has no backing data. It never changes the view.
	ErrNoImageData = errors.New("no image data available")
	ErrNoResult    = errors.New(MsgNoResult)
	ErrNoImages    = errors.New(MsgNoImages)
)

// Image is one downloadable file.
type Image struct {
	Name      string
	ClassName string // empty for the labeled image
	Data      []byte
}

// Labeled reports whether this is the labeled cheque image.
func (i Image) Labeled() bool { return i.ClassName == "" }

// Scheduled is an image with its delivery offset from the start of a download-all.
type Scheduled struct {
	Image
	Delay time.Duration
}

// Sink delivers exported files.
type Sink interface {
	Deliver(ctx context.Context, name string, data []byte) error
}

// DirSink writes files into a directory.
type DirSink struct {
	Dir string
}

func (d DirSink) Deliver(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	// class names come from the server
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LabeledImage returns the labeled image of a result.
func LabeledImage(r *entity.ExtractionResult) (Image, error) {
	if r == nil {
		return Image{}, ErrNoResult
	}
	data, err := decodeImage(r.LabeledImage)
	if err != nil {
		return Image{}, err
	}
	return Image{Name: constants.LabeledImageName, Data: data}, nil
}

// CroppedImage returns the crop of one detected object.
func CroppedImage(r *entity.ExtractionResult, className string) (Image, error) {
	if r == nil {
		return Image{}, ErrNoResult
	}
	obj, ok := r.DetectedObjects.Get(className)
	if !ok {
		return Image{}, fmt.Errorf("object %q: %w", className, common.ErrNotFound)
	}
	data, err := decodeImage(obj.CroppedImage)
	if err != nil {
		return Image{}, err
	}
	return Image{Name: constants.CroppedImageName(className), ClassName: className, Data: data}, nil
}

// Collect gathers every available image: the labeled image first, then crops in detection order.
func Collect(r *entity.ExtractionResult) ([]Image, error) {
	if r == nil {
		return nil, ErrNoResult
	}
	var out []Image
	if r.LabeledImage != "" {
		img, err := LabeledImage(r)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	for _, cd := range r.DetectedObjects {
		if cd.Object.CroppedImage == "" {
			continue
		}
		img, err := CroppedImage(r, cd.ClassName)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	if len(out) == 0 {
		return nil, ErrNoImages
	}
	return out, nil
}

// Plan spaces images stagger apart; a single image is delivered immediately.
func Plan(images []Image, stagger time.Duration) []Scheduled {
	out := make([]Scheduled, len(images))
	for i, img := range images {
		out[i] = Scheduled{Image: img, Delay: time.Duration(i) * stagger}
	}
	return out
}

func decodeImage(b64 string) ([]byte, error) {
	if b64 == "" {
		return nil, ErrNoImageData
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w: %w", common.ErrInvalidInput, err)
	}
	return data, nil
}

// Exporter delivers result images through a sink.
type Exporter struct {
	sink    Sink
	stagger time.Duration
	logger  *slog.Logger
}

func NewExporter(sink Sink, stagger time.Duration, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{sink: sink, stagger: stagger, logger: logger}
}

func (e *Exporter) DownloadLabeled(ctx context.Context, r *entity.ExtractionResult) error {
	img, err := LabeledImage(r)
	if err != nil {
		return err
	}
	return e.deliver(ctx, img)
}

func (e *Exporter) DownloadCropped(ctx context.Context, r *entity.ExtractionResult, className string) error {
	img, err := CroppedImage(r, className)
	if err != nil {
		return err
	}
	return e.deliver(ctx, img)
}

// DownloadAll delivers every image on the staggered plan and returns how many were delivered.
func (e *Exporter) DownloadAll(ctx context.Context, r *entity.ExtractionResult) (int, error) {
	images, err := Collect(r)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	delivered := 0
	for _, s := range Plan(images, e.stagger) {
		if wait := s.Delay - time.Since(start); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return delivered, ctx.Err()
			case <-t.C:
			}
		}
		if err := e.deliver(ctx, s.Image); err != nil {
			return delivered, err
		}
		delivered++
	}

	e.logger.Info("export.images.ok",
		"count", delivered,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return delivered, nil
}

func (e *Exporter) deliver(ctx context.Context, img Image) error {
	if err := e.sink.Deliver(ctx, img.Name, img.Data); err != nil {
		e.logger.Error("export.image.failed", "name", img.Name, "err", err)
		return err
	}
	e.logger.Debug("export.image.ok", "name", img.Name, "bytes", len(img.Data))
	return nil
}
