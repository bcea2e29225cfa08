package artifact

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/quartzbi/beacon/errors"
	"github.com/quartzbi/beacon/report"
)

// stitchPDF combines PNG screenshots into a single multi-page document,
// one screenshot per page, scaled to the page width.
func stitchPDF(screenshots [][]byte) ([]byte, error) {
	if len(screenshots) == 0 {
		return nil, errors.Wrap(report.ErrPdfFailed, "no screenshots to stitch")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}

	for i, shot := range screenshots {
		name := fmt.Sprintf("screenshot-%d", i)
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(shot))
		if pdf.Err() {
			return nil, errors.Wrapf(report.ErrPdfFailed, "decoding screenshot %d: %v", i, pdf.Error())
		}
		pdf.AddPage()
		pageWidth, _ := pdf.GetPageSize()
		left, top, right, _ := pdf.GetMargins()
		pdf.ImageOptions(name, left, top, pageWidth-left-right, 0, false, opts, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Wrapf(report.ErrPdfFailed, "writing document: %v", err)
	}
	return buf.Bytes(), nil
}
