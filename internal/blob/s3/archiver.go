package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
)

const (
	defaultArchiveBatch = 1000
	contentTypeJSONL    = "application/x-ndjson"
)

// ArchiveSource is the slice of domain.OpportunityStore the archiver needs.
type ArchiveSource interface {
	ListClosedBefore(ctx context.Context, before time.Time, limit int) ([]domain.OpportunityRecord, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// Archiver implements domain.Archiver. Closed opportunities older than the
// cutoff are written to JSONL objects under archive/opportunities/ and then
// deleted from the store. Rows are deleted only after their object uploaded.
type Archiver struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	source    ArchiveSource
	audit     domain.AuditStore
	batchSize int
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, source ArchiveSource, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		writer:    writer,
		reader:    reader,
		source:    source,
		audit:     audit,
		batchSize: defaultArchiveBatch,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOpportunities moves every closed opportunity with closed_at before
// the cutoff and returns how many rows were archived.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for part := 0; ; part++ {
		recs, err := a.source.ListClosedBefore(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive query: %w", err)
		}
		if len(recs) == 0 {
			break
		}

		path, err := a.objectPath(ctx, before, part)
		if err != nil {
			return total, err
		}
		buf, err := marshalJSONL(recs)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive marshal: %w", err)
		}
		if int64(len(buf)) > minPartSize {
			err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
		} else {
			err = a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
		}
		if err != nil {
			return total, fmt.Errorf("s3blob: archive upload: %w", err)
		}

		ids := make([]string, len(recs))
		for i, r := range recs {
			ids[i] = r.ID
		}
		n, err := a.source.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive delete: %w", err)
		}
		total += n

		a.logger.Info("archived opportunities",
			slog.String("path", path),
			slog.Int("rows", len(recs)),
			slog.Int64("deleted", n),
		)
		if a.audit != nil {
			if err := a.audit.Log(ctx, "archive.opportunities", map[string]any{
				"path":   path,
				"count":  len(recs),
				"before": before.UTC().Format(time.RFC3339),
			}); err != nil {
				a.logger.Warn("audit archive run", slog.String("error", err.Error()))
			}
		}

		if len(recs) < a.batchSize {
			break
		}
	}
	return total, nil
}

// objectPath picks a key that does not overwrite an earlier run with the
// same cutoff.
func (a *Archiver) objectPath(ctx context.Context, before time.Time, part int) (string, error) {
	base := archivePath(before, part)
	if a.reader == nil {
		return base, nil
	}
	path := base
	for n := 1; ; n++ {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive check %s: %w", path, err)
		}
		if !exists {
			return path, nil
		}
		path = fmt.Sprintf("%s.%d", base, n)
	}
}

// archivePath is partitioned by the cutoff day:
//
//	archive/opportunities/2026-03-01/20260301T000000Z-000.jsonl
func archivePath(before time.Time, part int) string {
	before = before.UTC()
	return fmt.Sprintf("archive/opportunities/%s/%s-%03d.jsonl",
		before.Format("2006-01-02"), before.Format("20060102T150405Z"), part)
}

// marshalJSONL writes one compact JSON document per line.
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

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
