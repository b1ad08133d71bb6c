package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/joseph-ayodele/cheque-extractor/internal/entity"
)

// FromPath reads a local file into an upload. The media type comes from the extension and
// falls back to sniffing the content; a file that is neither keeps
// "application/octet-stream" so the session rejects it with the usual notice.
func FromPath(path string, performOCR bool, logger *slog.Logger) (entity.Upload, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(path) == "" {
		return entity.Upload{}, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return entity.Upload{}, fmt.Errorf("abs path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return entity.Upload{}, fmt.Errorf("read %s: %w", path, err)
	}

	mediaType := MediaTypeForExt(abs)
	source := "extension"
	if mediaType == "" {
		mediaType = SniffMediaType(data)
		source = "sniffed"
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
		source = "unknown"
	}

	logger.Debug("ingest.file.read",
		"path", abs,
		"size", humanize.Bytes(uint64(len(data))),
		"media_type", mediaType,
		"media_type_source", source,
	)

	return entity.Upload{
		Filename:   filepath.Base(abs),
		MediaType:  mediaType,
		Data:       data,
		PerformOCR: performOCR,
	}, nil
}
