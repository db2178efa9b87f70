package s3blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pumpsly/duelcore/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = buf
	w.types[path] = contentType
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "application/octet-stream")
}

type memDuelStore struct{ duels []domain.Duel }

func (s *memDuelStore) ListResolvedBefore(_ context.Context, _ time.Time) ([]domain.Duel, error) {
	return s.duels, nil
}

type memTradeStore struct{ trades []domain.Trade }

func (s *memTradeStore) ListTradesBefore(_ context.Context, _ time.Time) ([]domain.Trade, error) {
	return s.trades, nil
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiveResolvedDuelsWritesJSONL(t *testing.T) {
	writer := newMemWriter()
	duels := &memDuelStore{duels: []domain.Duel{
		{ID: uuid.New(), DuelID: 1, Status: domain.DuelStatusResolved},
		{ID: uuid.New(), DuelID: 2, Status: domain.DuelStatusExpired},
	}}
	audit := &memAudit{}
	arch := NewArchiver(writer, duels, &memTradeStore{}, audit, "")

	cutoff := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	n, err := arch.ArchiveResolvedDuels(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveResolvedDuels: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived = %d, want 2", n)
	}

	const wantPath = "archive/duels/2026-01.jsonl"
	body, ok := writer.objects[wantPath]
	if !ok {
		t.Fatalf("no object at %s, got %v", wantPath, writer.objects)
	}
	if writer.types[wantPath] != "application/x-ndjson" {
		t.Fatalf("content type = %q", writer.types[wantPath])
	}
	lines := bytes.Split(bytes.TrimSpace(body), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("jsonl lines = %d, want 2", len(lines))
	}
	if len(audit.events) != 1 || audit.events[0] != "archive.duels" {
		t.Fatalf("audit events = %v", audit.events)
	}
}

func TestArchiveSkipsUploadWhenEmpty(t *testing.T) {
	writer := newMemWriter()
	arch := NewArchiver(writer, &memDuelStore{}, &memTradeStore{}, &memAudit{}, "cold")

	n, err := arch.ArchiveTrades(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveTrades: %v", err)
	}
	if n != 0 || len(writer.objects) != 0 {
		t.Fatalf("n = %d, objects = %v, want nothing written", n, writer.objects)
	}
}

func TestArchiveTradesUsesConfiguredPrefix(t *testing.T) {
	writer := newMemWriter()
	trades := &memTradeStore{trades: []domain.Trade{
		{ID: uuid.New(), Signature: "sig1", Type: domain.TradeBuyYes},
	}}
	arch := NewArchiver(writer, &memDuelStore{}, trades, &memAudit{}, "cold")

	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if _, err := arch.ArchiveTrades(context.Background(), cutoff); err != nil {
		t.Fatalf("ArchiveTrades: %v", err)
	}
	for path := range writer.objects {
		if !strings.HasPrefix(path, "cold/trades/") {
			t.Fatalf("path = %q, want cold/trades/ prefix", path)
		}
	}
}
