package loader

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"askdocs/internal/domain"
)

// extractPDF returns the text layer of a PDF. Scanned pages without a text
// layer yield nothing; OCR is not attempted.
func extractPDF(name string, data []byte) (text []byte, err error) {
	// the parser panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			text, err = nil, fmt.Errorf("%w: unreadable PDF %s: %v", domain.ErrUnsupportedType, name, r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable PDF %s: %v", domain.ErrUnsupportedType, name, err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("%w: extract text from %s: %v", domain.ErrUnsupportedType, name, err)
	}
	return io.ReadAll(plain)
}
