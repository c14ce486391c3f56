package scan

import (
	"bytes"
	"fmt"

	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

// MaxPDFPages caps accepted PDFs. No claim document plausibly exceeds
// it; flood PDFs are a decompression hazard for downstream viewers.
const MaxPDFPages = 500

var pdfHeader = []byte("%PDF-")

// unsafePDFNames are name tokens that mark active or carrier content.
// Token matching is delimiter-bounded so /JSmith does not trip /JS.
var unsafePDFNames = [][]byte{
	[]byte("/JavaScript"),
	[]byte("/JS"),
	[]byte("/EmbeddedFile"),
	[]byte("/EmbeddedFiles"),
	[]byte("/FileAttachment"),
}

// CheckPDF rejects PDFs carrying embedded JavaScript, embedded files,
// or an implausible page count. A PDF parser is deliberately not used:
// the gate needs only token presence, and a parser would widen the
// attack surface it is meant to shrink. Deep inspection belongs to the
// malware scanner.
func CheckPDF(content []byte) error {
	if !bytes.HasPrefix(content, pdfHeader) {
		return apperrors.MimeMismatch(apperrors.CodeMimeMismatch,
			"document does not start with a PDF header")
	}

	for _, name := range unsafePDFNames {
		if countPDFNames(content, name) > 0 {
			return apperrors.ScannerDetectedThreat(apperrors.CodePDFUnsafe,
				"PDF contains embedded scripts or files and cannot be accepted")
		}
	}

	if pages := countPDFNames(content, []byte("/Page")); pages > MaxPDFPages {
		return apperrors.ScannerDetectedThreat(apperrors.CodePDFUnsafe,
			fmt.Sprintf("PDF exceeds the %d page limit", MaxPDFPages))
	}
	return nil
}

// countPDFNames counts delimiter-bounded occurrences of the exact name
// token. Objects inside compressed object streams are invisible here.
func countPDFNames(raw, name []byte) int {
	count := 0
	off := 0
	for {
		idx := bytes.Index(raw[off:], name)
		if idx < 0 {
			return count
		}
		end := off + idx + len(name)
		if end >= len(raw) || isPDFDelimiter(raw[end]) {
			count++
		}
		off += idx + 1
	}
}

// isPDFDelimiter matches PDF whitespace and structural delimiters.
func isPDFDelimiter(b byte) bool {
	switch b {
	case 0x00, 0x09, 0x0a, 0x0c, 0x0d, 0x20, '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
