// Package pdfutil reads PDF templates for inspection: page counts for
// validating overlay placements and plain text for eyeballing a template
// revision from the terminal.
package pdfutil

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// PageCount returns the number of pages in the document.
func PageCount(data []byte) (int, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("new pdf reader: %w", err)
	}
	return doc.NumPage(), nil
}

// ExtractPages returns the plain text of every page, one entry per page.
// Pages without a content stream yield an empty string so indexes stay
// aligned with page numbers.
func ExtractPages(data []byte) ([]string, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("new pdf reader: %w", err)
	}
	total := doc.NumPage()
	pages := make([]string, 0, total)
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		pages = append(pages, content)
	}
	return pages, nil
}

// ExtractText joins ExtractPages with newlines.
func ExtractText(data []byte) (string, error) {
	pages, err := ExtractPages(data)
	if err != nil {
		return "", err
	}
	var builder strings.Builder
	for _, content := range pages {
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}
