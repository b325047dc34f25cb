package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// ErrExtraction is wrapped by every error returned from Extract.
var ErrExtraction = errors.New("text extraction failed")

// Extractor turns uploaded bytes into plain text, dispatching on the file
// extension.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

// Extract returns the text of raw. name may be a file name or a bare
// extension such as ".pdf"; matching is case-insensitive.
func (e *Extractor) Extract(raw []byte, name string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return pdfText(raw)
	case ".html", ".htm":
		return htmlText(raw)
	default:
		return strings.ToValidUTF8(string(raw), ""), nil
	}
}

func pdfText(raw []byte) (text string, err error) {
	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: pdf: %v", ErrExtraction, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf: %v", ErrExtraction, err)
	}
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		s, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: pdf page %d: %v", ErrExtraction, i, err)
		}
		pages = append(pages, s)
	}
	return strings.Join(pages, "\n"), nil
}

func htmlText(raw []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: html: %v", ErrExtraction, err)
	}
	doc.Find("script, style, noscript").Remove()

	var lines []string
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		for _, line := range strings.Split(s.Text(), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
	})
	return strings.Join(lines, "\n"), nil
}
