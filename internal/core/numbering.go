package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DocType prefixes a generated business number.
type DocType string

const (
	DocSalesOrder    DocType = "SO"
	DocPurchaseOrder DocType = "PO"
	DocInvoice       DocType = "INV"
	DocRoute         DocType = "RT"
)

// NumberingService allocates human-readable business numbers of the form
// {PREFIX}-{YYYYMMDD}-{NNN}, unique and monotonically increasing per tenant,
// per day, per document type.
//
// Allocation always happens inside the caller's transaction: the counter row
// upsert takes a row lock, so two concurrent creators serialize on it and can
// never observe the same value. If the caller's transaction rolls back the
// increment rolls back too, which can leave gaps — uniqueness is the
// requirement, gaplessness is not.
type NumberingService interface {
	NextNumberTx(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, docType DocType, day time.Time) (string, error)
}

type numberingService struct{}

func NewNumberingService() NumberingService {
	return numberingService{}
}

func (numberingService) NextNumberTx(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, docType DocType, day time.Time) (string, error) {
	var seq int64
	err := tx.QueryRow(ctx, `
		INSERT INTO doc_sequences (tenant_id, doc_type, seq_date, last_number)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (tenant_id, doc_type, seq_date)
		DO UPDATE SET last_number = doc_sequences.last_number + 1
		RETURNING last_number
	`, tenantID, string(docType), day.Format("2006-01-02")).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("failed to advance %s sequence: %w", docType, err)
	}
	return FormatNumber(docType, day, seq), nil
}

// FormatNumber renders a business number. The sequence is zero-padded to
// three digits and widens naturally past 999.
func FormatNumber(docType DocType, day time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%03d", docType, day.Format("20060102"), seq)
}
