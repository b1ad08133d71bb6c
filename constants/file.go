package constants

import "strings"

// AllowedMediaTypes holds the declared media types accepted for upload.
var AllowedMediaTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/jpg":  {},
	"image/tiff": {},
	"image/bmp":  {},
	"image/gif":  {},
}

// ExtMediaTypes maps a normalized file extension to the media type declared for it.
var ExtMediaTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"bmp":  "image/bmp",
	"gif":  "image/gif",
}

// Download naming conventions.
const (
	LabeledImageName   = "labeled_cheque.jpg"
	CroppedImageSuffix = "_cropped.jpg"
	ReportName         = "detections.xlsx"
)

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// NormalizeMediaType lowercases a declared media type and strips any parameters.
func NormalizeMediaType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// IsAllowedMediaType reports whether mt is on the upload allow-list.
func IsAllowedMediaType(mt string) bool {
	_, ok := AllowedMediaTypes[NormalizeMediaType(mt)]
	return ok
}

// CroppedImageName returns the download name for a detected object's crop.
func CroppedImageName(className string) string {
	return className + CroppedImageSuffix
}
