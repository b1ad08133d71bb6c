package export

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/cheque-extractor/constants"
	"github.com/joseph-ayodele/cheque-extractor/internal/entity"
	"github.com/joseph-ayodele/cheque-extractor/internal/ingest"
)

const (
	SummarySheet    = "Summary"
	DetectionsSheet = "Detections"
)

// Report builds an XLSX workbook describing one extraction result.
func Report(taskID string, r *entity.ExtractionResult) ([]byte, error) {
	if r == nil {
		return nil, ErrNoResult
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// the default sheet becomes the summary
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(DetectionsSheet); err != nil {
		return nil, err
	}
	summaryIndex, _ := f.GetSheetIndex(SummarySheet)
	f.SetActiveSheet(summaryIndex)

	account := r.OCRResult
	if account == "" {
		account = "Not available"
	}
	labeled := "none"
	if r.LabeledImage != "" {
		labeled = "present"
		if data, err := decodeImage(r.LabeledImage); err == nil {
			if info, err := ingest.Inspect(data); err == nil {
				labeled = fmt.Sprintf("%dx%d %s", info.Width, info.Height, info.Format)
			}
		}
	}
	summary := [][2]any{
		{"Task ID", taskID},
		{"Account Number", account},
		{"Detected Objects", len(r.DetectedObjects)},
		{"Labeled Image", labeled},
	}
	for i, kv := range summary {
		row := i + 1
		_ = f.SetCellValue(SummarySheet, cell(1, row), kv[0])
		_ = f.SetCellValue(SummarySheet, cell(2, row), kv[1])
	}
	_ = f.SetColWidth(SummarySheet, "A", "A", 20)
	_ = f.SetColWidth(SummarySheet, "B", "B", 40)

	headers := []string{"Object", "Confidence", "Cropped Image"}
	for i, h := range headers {
		_ = f.SetCellValue(DetectionsSheet, cell(i+1, 1), h)
	}
	pct, err := f.NewStyle(&excelize.Style{NumFmt: 10}) // 0.00%
	if err != nil {
		return nil, err
	}
	for i, cd := range r.DetectedObjects {
		row := i + 2
		_ = f.SetCellValue(DetectionsSheet, cell(1, row), cd.ClassName)
		_ = f.SetCellValue(DetectionsSheet, cell(2, row), cd.Object.Confidence)
		_ = f.SetCellStyle(DetectionsSheet, cell(2, row), cell(2, row), pct)
		crop := ""
		if cd.Object.CroppedImage != "" {
			crop = constants.CroppedImageName(cd.ClassName)
		}
		_ = f.SetCellValue(DetectionsSheet, cell(3, row), crop)
	}
	_ = f.SetColWidth(DetectionsSheet, "A", "A", 24)
	_ = f.SetColWidth(DetectionsSheet, "B", "B", 14)
	_ = f.SetColWidth(DetectionsSheet, "C", "C", 32)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// DownloadReport delivers the workbook through the sink as detections.xlsx.
func (e *Exporter) DownloadReport(ctx context.Context, taskID string, r *entity.ExtractionResult) error {
	start := time.Now()
	data, err := Report(taskID, r)
	if err != nil {
		return err
	}
	if err := e.sink.Deliver(ctx, constants.ReportName, data); err != nil {
		return err
	}
	e.logger.Info("export.xlsx.ok",
		"task_id", taskID,
		"rows", len(r.DetectedObjects),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
