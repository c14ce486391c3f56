package docpipe

import "aeroclaim.io/aeroclaim/internal/domain"

const mib = int64(1) << 20

// Rule is the acceptance contract for one document type. ContentTypes
// are matched against the sniffed MIME type only; the declared header
// and the filename extension never widen what a rule accepts.
type Rule struct {
	MaxBytes int64
	// ContentTypes lists the sniffed media types the rule accepts.
	ContentTypes []string
	// Extensions are the display extensions shown to reviewers. They
	// carry no authority during validation.
	Extensions []string
	// RequireScan routes the content through the malware scanner when
	// one is configured.
	RequireScan bool
	// Encrypt selects envelope encryption before the remote write.
	// Every current rule sets it; the flag exists so a future public
	// artifact type can opt out without a pipeline change.
	Encrypt bool
}

var imageOrPDF = []string{"application/pdf", "image/jpeg", "image/png"}

// rules maps each document type to its acceptance contract. Bank
// statements are the strictest: PDF only, 5 MiB, always scanned.
var rules = map[domain.DocumentType]Rule{
	domain.DocBoardingPass: {
		MaxBytes:     10 * mib,
		ContentTypes: imageOrPDF,
		Extensions:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		RequireScan:  true,
		Encrypt:      true,
	},
	domain.DocIDDocument: {
		MaxBytes:     10 * mib,
		ContentTypes: imageOrPDF,
		Extensions:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		RequireScan:  true,
		Encrypt:      true,
	},
	domain.DocReceipt: {
		MaxBytes:     10 * mib,
		ContentTypes: imageOrPDF,
		Extensions:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		RequireScan:  true,
		Encrypt:      true,
	},
	domain.DocBankStatement: {
		MaxBytes:     5 * mib,
		ContentTypes: []string{"application/pdf"},
		Extensions:   []string{".pdf"},
		RequireScan:  true,
		Encrypt:      true,
	},
	domain.DocFlightTicket: {
		MaxBytes:     10 * mib,
		ContentTypes: imageOrPDF,
		Extensions:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		RequireScan:  true,
		Encrypt:      true,
	},
	domain.DocDelayCertificate: {
		MaxBytes:     10 * mib,
		ContentTypes: imageOrPDF,
		Extensions:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		RequireScan:  true,
		Encrypt:      true,
	},
	domain.DocCancellationNotice: {
		MaxBytes:     10 * mib,
		ContentTypes: imageOrPDF,
		Extensions:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		RequireScan:  true,
		Encrypt:      true,
	},
	domain.DocOther: {
		MaxBytes:     25 * mib,
		ContentTypes: imageOrPDF,
		Extensions:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		RequireScan:  true,
		Encrypt:      true,
	},
}

// RuleFor returns the acceptance rule for a document type.
func RuleFor(dt domain.DocumentType) (Rule, bool) {
	r, ok := rules[dt]
	return r, ok
}

// accepts reports whether the sniffed type satisfies the rule. is is
// the sniffer's alias-aware matcher.
func (r Rule) accepts(is func(string) bool) bool {
	for _, ct := range r.ContentTypes {
		if is(ct) {
			return true
		}
	}
	return false
}
