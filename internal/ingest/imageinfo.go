package ingest

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ImageInfo describes decoded image headers.
type ImageInfo struct {
	Format string
	Width  int
	Height int
}

// MediaType is the image/* type of the decoded format.
func (i ImageInfo) MediaType() string {
	return "image/" + i.Format
}

// Inspect decodes only the image header.
func Inspect(data []byte) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("decode image config: %w", err)
	}
	return ImageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// SniffMediaType guesses the media type of raw bytes, "" when they are not a known image.
func SniffMediaType(data []byte) string {
	info, err := Inspect(data)
	if err != nil {
		return ""
	}
	return info.MediaType()
}
