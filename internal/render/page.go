package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/joseph-ayodele/cheque-extractor/internal/entity"
	"github.com/joseph-ayodele/cheque-extractor/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageData feeds page.html.
type PageData struct {
	Snap            session.Snapshot
	View            string
	Results         *ResultsView
	History         []entity.TaskRecord
	Alert           string
	RefreshSeconds  int
	NoticeTTLMillis int64
}

// NewPageData prepares the page for a snapshot. Results are only built for the Results view.
func NewPageData(snap session.Snapshot, pollInterval, noticeTTL time.Duration) PageData {
	pd := PageData{
		Snap:            snap,
		View:            snap.View.String(),
		Alert:           snap.Alert,
		NoticeTTLMillis: noticeTTL.Milliseconds(),
	}
	switch snap.View {
	case session.ViewProcessing:
		pd.RefreshSeconds = max(1, int(pollInterval.Round(time.Second)/time.Second))
	case session.ViewResults:
		rv := BuildResults(snap.Result)
		pd.Results = &rv
	}
	return pd
}

// DownloadLink is one entry of the download-all page.
type DownloadLink struct {
	Name        string
	URL         string
	DelayMillis int64
}

// DownloadAllData feeds download_all.html.
type DownloadAllData struct {
	Items []DownloadLink
}

// Renderer executes the embedded HTML templates.
type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("layout").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

func (r *Renderer) Page(w io.Writer, data PageData) error {
	return r.tmpl.ExecuteTemplate(w, "page.html", data)
}

func (r *Renderer) DownloadAll(w io.Writer, data DownloadAllData) error {
	return r.tmpl.ExecuteTemplate(w, "download_all.html", data)
}
