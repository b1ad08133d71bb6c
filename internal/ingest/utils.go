package ingest

import (
	"path/filepath"

	"github.com/joseph-ayodele/cheque-extractor/constants"
)

// MediaTypeForExt returns the media type declared for a file extension, or "" if unknown.
func MediaTypeForExt(path string) string {
	return constants.ExtMediaTypes[constants.NormalizeExt(filepath.Ext(path))]
}
