package render

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/joseph-ayodele/cheque-extractor/internal/entity"
)

// WriteResultsTable prints a results view for a terminal.
func WriteResultsTable(w io.Writer, v ResultsView) {
	fmt.Fprintf(w, "Account number: %s\n%s\n\n", v.OCRText, v.OCRStatus)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Object", "Confidence", "Crop", "File"})
	table.SetAutoWrapText(false)
	for _, c := range v.Cards {
		crop := "none"
		if c.HasImage {
			crop = humanize.Bytes(uint64(c.ImageBytes))
		}
		table.Append([]string{c.ClassName, c.Confidence, crop, c.DownloadName})
	}
	table.Render()

	if v.HasLabeledImage {
		fmt.Fprintf(w, "\nLabeled image: %s\n", humanize.Bytes(uint64(v.LabeledBytes)))
	} else {
		fmt.Fprintln(w, "\nLabeled image: none")
	}
}

// WriteHistoryTable prints journal records, newest first as given.
func WriteHistoryTable(w io.Writer, recs []entity.TaskRecord, now time.Time) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Task", "File", "OCR", "Status", "Submitted", "Message"})
	table.SetAutoWrapText(false)
	for _, r := range recs {
		ocr := "no"
		if r.PerformOCR {
			ocr = "yes"
		}
		table.Append([]string{
			r.TaskID,
			r.Filename,
			ocr,
			string(r.Status),
			humanize.RelTime(r.SubmittedAt, now, "ago", "from now"),
			r.Message,
		})
	}
	table.Render()
}
