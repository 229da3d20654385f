package parsing

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// wordGap is the horizontal gap, relative to the font size, above which two
// glyphs on one row belong to different words.
const wordGap = 0.2

// PDFPages extracts text lines from a PDF document, page by page, top to bottom.
// A page whose text cannot be read is kept with Err set.
func PDFPages(b []byte) (pages []Page, err error) {
	// The reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("read pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	for i := 1; i <= r.NumPage(); i++ {
		pg := r.Page(i)
		if pg.V.IsNull() {
			continue
		}
		page := Page{Number: i}
		rows, err := pg.GetTextByRow()
		if err != nil {
			page.Err = err
			pages = append(pages, page)
			continue
		}
		// PDF y grows upwards.
		sort.SliceStable(rows, func(a, b int) bool { return rows[a].Position > rows[b].Position })

		for _, row := range rows {
			if line := joinRow(row.Content); line != "" {
				page.Lines = append(page.Lines, line)
			}
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func joinRow(texts []pdf.Text) string {
	sort.SliceStable(texts, func(a, b int) bool { return texts[a].X < texts[b].X })
	var b strings.Builder
	end := 0.0
	for i, t := range texts {
		if i > 0 && t.X-end > t.FontSize*wordGap {
			b.WriteByte(' ')
		}
		b.WriteString(t.S)
		end = t.X + t.W
	}
	return strings.TrimSpace(b.String())
}
