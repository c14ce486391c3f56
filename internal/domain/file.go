package domain

import (
	"time"

	"github.com/google/uuid"
)

// DocumentType classifies an uploaded file and selects its validation
// rule (size cap, allowed content types, scan requirement).
type DocumentType string

const (
	DocBoardingPass       DocumentType = "boarding_pass"
	DocIDDocument         DocumentType = "id_document"
	DocReceipt            DocumentType = "receipt"
	DocBankStatement      DocumentType = "bank_statement"
	DocFlightTicket       DocumentType = "flight_ticket"
	DocDelayCertificate   DocumentType = "delay_certificate"
	DocCancellationNotice DocumentType = "cancellation_notice"
	DocOther              DocumentType = "other"
)

// Valid reports whether d is a known document type.
func (d DocumentType) Valid() bool {
	switch d {
	case DocBoardingPass, DocIDDocument, DocReceipt, DocBankStatement,
		DocFlightTicket, DocDelayCertificate, DocCancellationNotice, DocOther:
		return true
	}
	return false
}

// FileReviewStatus is the admin review verdict on an uploaded document.
type FileReviewStatus string

const (
	FileUploaded FileReviewStatus = "uploaded"
	FileApproved FileReviewStatus = "approved"
	FileRejected FileReviewStatus = "rejected"

	// FileCorrupted is set when a download fails its integrity check.
	// The object is considered unreadable from then on.
	FileCorrupted FileReviewStatus = "corrupted"
)

// ClaimFile is the metadata record for one encrypted document in remote
// storage. The plaintext digest and sizes pin down what was uploaded;
// storage holds only ciphertext.
type ClaimFile struct {
	ID      uuid.UUID
	ClaimID uuid.UUID

	// Filename is PII-adjacent (often contains passenger names) and is
	// stored encrypted.
	Filename     string
	ContentType  string
	DocumentType DocumentType

	PlainSize   int64
	CipherSize  int64
	PlainDigest string // hex SHA-256 of the plaintext

	StoragePath      string
	EncryptionScheme string
	ChunkSize        int // 0 for single-shot envelopes

	ReviewStatus    FileReviewStatus
	RejectionReason string
	ReviewedBy      *uuid.UUID
	ReviewedAt      *time.Time

	UploadedBy uuid.UUID
	UploadedAt time.Time

	// DeletedAt is the soft-delete mark. The remote object outlives it
	// until the reaper purges it; PurgedAt records that purge.
	DeletedAt *time.Time
	PurgedAt  *time.Time
}

// Deleted reports whether the file is soft-deleted.
func (f *ClaimFile) Deleted() bool {
	return f.DeletedAt != nil
}

// Readable reports whether download is permitted at all.
func (f *ClaimFile) Readable() bool {
	return !f.Deleted() && f.ReviewStatus != FileCorrupted
}

// FileAction is the audited operation on a stored document.
type FileAction string

const (
	FileActionUpload       FileAction = "upload"
	FileActionDownload     FileAction = "download"
	FileActionDelete       FileAction = "delete"
	FileActionViewMetadata FileAction = "view_metadata"
	FileActionApprove      FileAction = "approve"
	FileActionReject       FileAction = "reject"
)

// FileAccessLog is one append-only audit record. Rows are never updated
// or deleted; partial or failed deliveries append a second row.
type FileAccessLog struct {
	ID        uuid.UUID
	FileID    uuid.UUID
	ActorID   uuid.UUID
	Action    FileAction
	Detail    string
	ClientIP  string
	UserAgent string
	CreatedAt time.Time
}
