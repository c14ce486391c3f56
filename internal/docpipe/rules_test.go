package docpipe

import (
	"testing"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

func TestRuleFor_CoversEveryDocumentType(t *testing.T) {
	t.Parallel()

	for _, dt := range []domain.DocumentType{
		domain.DocBoardingPass, domain.DocIDDocument, domain.DocReceipt,
		domain.DocBankStatement, domain.DocFlightTicket,
		domain.DocDelayCertificate, domain.DocCancellationNotice, domain.DocOther,
	} {
		rule, ok := RuleFor(dt)
		require.True(t, ok, "no rule for %s", dt)
		assert.Positive(t, rule.MaxBytes, "%s", dt)
		assert.NotEmpty(t, rule.ContentTypes, "%s", dt)
		assert.True(t, rule.RequireScan, "%s must be scanned", dt)
		assert.True(t, rule.Encrypt, "%s must be encrypted", dt)
	}

	_, ok := RuleFor(domain.DocumentType("passport_scan"))
	assert.False(t, ok)
}

func TestRuleFor_BankStatementIsStrictest(t *testing.T) {
	t.Parallel()

	rule, ok := RuleFor(domain.DocBankStatement)
	require.True(t, ok)
	assert.Equal(t, 5*mib, rule.MaxBytes)
	assert.Equal(t, []string{"application/pdf"}, rule.ContentTypes)
}

func TestRuleAccepts_MatchesSniffedTypeOnly(t *testing.T) {
	t.Parallel()

	rule, _ := RuleFor(domain.DocBankStatement)

	pdf := mimetype.Detect([]byte("%PDF-1.4\n%%EOF\n"))
	assert.True(t, rule.accepts(pdf.Is))

	jpeg := mimetype.Detect([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'})
	assert.False(t, rule.accepts(jpeg.Is))
}

func TestCheckDeclaredType(t *testing.T) {
	t.Parallel()

	pdf := mimetype.Detect([]byte("%PDF-1.4\n%%EOF\n"))

	cases := []struct {
		name     string
		declared string
		wantErr  bool
	}{
		{"absent declaration passes", "", false},
		{"generic octet-stream passes", "application/octet-stream", false},
		{"matching declaration passes", "application/pdf", false},
		{"matching with parameters passes", "application/pdf; charset=binary", false},
		{"contradicting declaration fails", "image/png", true},
		{"malformed declaration fails", ";;;", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkDeclaredType(tc.declared, pdf)
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsKind(err, apperrors.KindMimeMismatch))
		})
	}
}

func TestDisplayName_StripsPathComponents(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"boarding-pass.pdf":             "boarding-pass.pdf",
		"/tmp/upload/boarding.pdf":      "boarding.pdf",
		`C:\Users\jan\Desktop\scan.jpg`: "scan.jpg",
		"../../etc/passwd":              "passwd",
		"":                              "document",
		"  ":                            "document",
		"..":                            "document",
	}
	for in, want := range cases {
		assert.Equal(t, want, displayName(in), "input %q", in)
	}
}

func TestObjectPath_IsOwnerClaimFile(t *testing.T) {
	t.Parallel()

	owner := uuid.MustParse("018f0000-0000-7000-8000-000000000001")
	claim := uuid.MustParse("018f0000-0000-7000-8000-000000000002")
	file := uuid.MustParse("018f0000-0000-7000-8000-000000000003")

	assert.Equal(t,
		"018f0000-0000-7000-8000-000000000001/018f0000-0000-7000-8000-000000000002/018f0000-0000-7000-8000-000000000003",
		objectPath(owner, claim, file))
}
