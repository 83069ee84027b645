package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/polyecho/echobot/internal/domain"
)

const (
	// archiveBatchSize bounds one export pass so a large backlog is drained
	// incrementally.
	archiveBatchSize = 5000

	defaultRetention = 90 * 24 * time.Hour
	sweepInterval    = 6 * time.Hour
)

// Archiver exports copy-trade journal rows older than the retention window
// to JSONL objects and prunes them from the database. Rows are only deleted
// after the upload succeeded.
type Archiver struct {
	client    *Client
	uploader  *manager.Uploader
	journal   domain.CopyTradeStore
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. retentionDays of 0 falls back to 90 days.
func NewArchiver(client *Client, journal domain.CopyTradeStore, retentionDays int, logger *slog.Logger) *Archiver {
	retention := time.Duration(retentionDays) * 24 * time.Hour
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Archiver{
		client:    client,
		uploader:  manager.NewUploader(client.s3),
		journal:   journal,
		retention: retention,
		logger:    logger.With(slog.String("component", "journal_archiver")),
	}
}

// Run archives expired journal rows periodically until the context is
// cancelled. Failures are logged and retried on the next tick.
func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.ArchiveExpired(ctx); err != nil {
				a.logger.ErrorContext(ctx, "journal archive pass failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

// ArchiveExpired exports and prunes all journal rows past the retention
// cutoff.
func (a *Archiver) ArchiveExpired(ctx context.Context) error {
	cutoff := time.Now().Add(-a.retention)

	rows, err := a.journal.ListBefore(ctx, cutoff, archiveBatchSize)
	if err != nil {
		return fmt.Errorf("s3blob: list expired journal rows: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	key := archiveKey(cutoff, rows[0].ID)
	if err := a.putJSONL(ctx, key, rows); err != nil {
		return err
	}

	pruned, err := a.journal.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("s3blob: prune archived rows: %w", err)
	}

	a.logger.InfoContext(ctx, "archived copy-trade journal rows",
		slog.String("key", key),
		slog.Int("exported", len(rows)),
		slog.Int64("pruned", pruned),
	)
	return nil
}

// putJSONL uploads rows as one JSON object per line.
func (a *Archiver) putJSONL(ctx context.Context, key string, rows []domain.CopyTrade) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("s3blob: encode journal row %s: %w", row.ID, err)
		}
	}

	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.client.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return nil
}

// archiveKey partitions exports by cutoff month, with the first row's ID as
// a uniqueness suffix so repeated passes never overwrite each other.
func archiveKey(cutoff time.Time, firstID string) string {
	return fmt.Sprintf("copy_trades/%s/%s.jsonl", cutoff.UTC().Format("2006/01"), firstID)
}
