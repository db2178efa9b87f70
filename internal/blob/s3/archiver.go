package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pumpsly/duelcore/internal/domain"
)

// Narrow store interfaces required by the archiver. The Postgres stores
// satisfy these implicitly through their time-ranged list methods.

// DuelArchiveStore provides read access to settled duels for archival.
type DuelArchiveStore interface {
	// ListResolvedBefore returns all terminal duels last updated strictly
	// before the given cutoff time.
	ListResolvedBefore(ctx context.Context, before time.Time) ([]domain.Duel, error)
}

// TradeArchiveStore provides read access to pool trades for archival.
type TradeArchiveStore interface {
	// ListTradesBefore returns all trades created strictly before the given
	// cutoff time.
	ListTradesBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// ArchiveImpl implements domain.Archiver by querying the stores for old
// records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer domain.BlobWriter
	duels  DuelArchiveStore
	trades TradeArchiveStore
	audit  domain.AuditStore
	prefix string
}

// NewArchiver creates a new ArchiveImpl. prefix is the S3 key prefix for
// archive files; empty means "archive".
func NewArchiver(
	writer domain.BlobWriter,
	duels DuelArchiveStore,
	trades TradeArchiveStore,
	audit domain.AuditStore,
	prefix string,
) *ArchiveImpl {
	if prefix == "" {
		prefix = "archive"
	}
	return &ArchiveImpl{
		writer: writer,
		duels:  duels,
		trades: trades,
		audit:  audit,
		prefix: prefix,
	}
}

// ArchiveResolvedDuels queries all terminal duels before the cutoff,
// serializes them to JSONL, and uploads the file to S3 at
// <prefix>/duels/YYYY-MM.jsonl. The archival event is recorded in the audit
// log and the count of archived records is returned.
func (a *ArchiveImpl) ArchiveResolvedDuels(ctx context.Context, before time.Time) (int64, error) {
	duels, err := a.duels.ListResolvedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive duels query: %w", err)
	}
	if len(duels) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(duels)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive duels marshal: %w", err)
	}

	path := a.archivePath("duels", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive duels upload: %w", err)
	}

	count := int64(len(duels))

	if err := a.audit.Log(ctx, "archive.duels", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive duels audit log: %w", err)
	}

	return count, nil
}

// ArchiveTrades queries all pool trades before the cutoff, serializes them
// to JSONL, and uploads the file to S3 at <prefix>/trades/YYYY-MM.jsonl. The
// archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListTradesBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := a.archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))

	if err := a.audit.Log(ctx, "archive.trades", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive trades audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/duels/2026-01.jsonl
//	archive/trades/2026-01.jsonl
func (a *ArchiveImpl) archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("%s/%s/%s.jsonl", a.prefix, kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
