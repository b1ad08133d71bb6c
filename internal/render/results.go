package render

import (
	"encoding/base64"
	"html/template"
	"net/url"
	"strconv"

	"github.com/joseph-ayodele/cheque-extractor/constants"
	"github.com/joseph-ayodele/cheque-extractor/internal/entity"
)

const (
	OCRUnavailable  = "Not available"
	OCRStatusOK     = "OCR Status: Successful"
	OCRStatusFailed = "OCR not performed or failed"
)

// ObjectCard is the rendering of one detected object.
type ObjectCard struct {
	ClassName    string
	Confidence   string
	ImageSrc     template.URL
	HasImage     bool
	ImageBytes   int
	DownloadName string
	DownloadURL  string
}

// ResultsView is everything the Results section shows.
type ResultsView struct {
	OCRText         string
	OCRStatus       string
	OCRError        bool
	Cards           []ObjectCard
	LabeledImageSrc template.URL
	HasLabeledImage bool
	LabeledBytes    int
}

// CroppedDownloadURL is the web route serving the crop of class as a single path segment.
func CroppedDownloadURL(class string) string {
	return "/download/objects/" + url.PathEscape(class)
}

// BuildResults maps a result to its view. The cards follow the order of the result's
// detections and are rebuilt from scratch on every call.
func BuildResults(r *entity.ExtractionResult) ResultsView {
	if r == nil {
		r = &entity.ExtractionResult{}
	}

	v := ResultsView{
		OCRText:   r.OCRResult,
		OCRStatus: OCRStatusOK,
	}
	if r.OCRResult == "" {
		v.OCRText = OCRUnavailable
		v.OCRStatus = OCRStatusFailed
		v.OCRError = true
	}

	v.Cards = make([]ObjectCard, 0, len(r.DetectedObjects))
	for _, cd := range r.DetectedObjects {
		card := ObjectCard{
			ClassName:    cd.ClassName,
			Confidence:   FormatConfidence(cd.Object.Confidence),
			ImageSrc:     CroppedPlaceholder,
			DownloadName: constants.CroppedImageName(cd.ClassName),
			DownloadURL:  CroppedDownloadURL(cd.ClassName),
		}
		if cd.Object.CroppedImage != "" {
			card.ImageSrc = JPEGDataURL(cd.Object.CroppedImage)
			card.HasImage = true
			card.ImageBytes = decodedLen(cd.Object.CroppedImage)
		}
		v.Cards = append(v.Cards, card)
	}

	v.LabeledImageSrc = LabeledPlaceholder
	if r.LabeledImage != "" {
		v.LabeledImageSrc = JPEGDataURL(r.LabeledImage)
		v.HasLabeledImage = true
		v.LabeledBytes = decodedLen(r.LabeledImage)
	}
	return v
}

// FormatConfidence renders a 0..1 confidence as a percentage with two decimals.
func FormatConfidence(c float64) string {
	return strconv.FormatFloat(c*100, 'f', 2, 64) + "%"
}

// JPEGDataURL wraps base64 JPEG data for use as an image source.
func JPEGDataURL(b64 string) template.URL {
	return template.URL("data:image/jpeg;base64," + b64)
}

func decodedLen(b64 string) int {
	n := base64.StdEncoding.DecodedLen(len(b64))
	for i := len(b64) - 1; i >= 0 && b64[i] == '='; i-- {
		n--
	}
	return n
}
