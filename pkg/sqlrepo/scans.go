package sqlrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rxscan/rxscan/pkg/bus/events"
	"github.com/rxscan/rxscan/pkg/pipeline"
	"github.com/rxscan/rxscan/pkg/pipeline/model"
	"github.com/rxscan/rxscan/pkg/scanner"
)

var _ pipeline.Recorder = (*Repo)(nil)

type scanRow struct {
	ID         string `db:"id"`
	DeviceID   string `db:"device_id"`
	ColorMode  string `db:"color_mode"`
	Status     string `db:"status"`
	OutputPath string `db:"output_path"`
	OutputSize int64  `db:"output_size"`
	Error      string `db:"error"`
	CreatedAt  int64  `db:"created_at"`
}

func (r *Repo) RecordScan(ctx context.Context, rec model.ScanRecord) error {
	stmt, err := r.prepare(ctx,
		`INSERT INTO scans (
			id,
			device_id,
			color_mode,
			status,
			output_path,
			output_size,
			error,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx,
		rec.ID.String(),
		rec.DeviceID,
		rec.Mode.String(),
		string(rec.Status),
		rec.OutputPath,
		rec.OutputSize,
		rec.Error,
		rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("inserting scan record: %w", err)
	}
	return nil
}

// ListScans returns the most recent scan records, newest first.
func (r *Repo) ListScans(ctx context.Context, limit int) ([]model.ScanRecord, error) {
	stmt, err := r.prepare(ctx,
		`SELECT
			id,
			device_id,
			color_mode,
			status,
			output_path,
			output_size,
			error,
			created_at
		FROM scans ORDER BY created_at DESC, id LIMIT ?`)
	if err != nil {
		return nil, err
	}
	var rows []scanRow
	if err := stmt.SelectContext(ctx, &rows, limit); err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}

	records := make([]model.ScanRecord, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			return nil, fmt.Errorf("parsing scan id %q: %w", row.ID, err)
		}
		mode, err := scanner.ParseColorMode(row.ColorMode)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", row.ID, err)
		}
		records = append(records, model.ScanRecord{
			ID:         id,
			DeviceID:   row.DeviceID,
			Mode:       mode,
			Status:     events.Status(row.Status),
			OutputPath: row.OutputPath,
			OutputSize: row.OutputSize,
			Error:      row.Error,
			CreatedAt:  time.Unix(row.CreatedAt, 0).UTC(),
		})
	}
	return records, nil
}
