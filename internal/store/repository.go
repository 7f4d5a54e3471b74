package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowlens/flowlens-agent/internal/timeline"
)

// TimelineRecord is a stored timeline plus its bookkeeping fields.
type TimelineRecord struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Timeline  *timeline.Timeline `json:"timeline"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ReportRecord is one persisted analysis report, stored as raw JSON so the
// schema does not chase the report shape.
type ReportRecord struct {
	ID         string          `json:"id"`
	TimelineID string          `json:"timeline_id"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Repository is the persistence surface of the agent. It also implements
// features.MetadataStore via GetMetadata.
type Repository interface {
	GetMetadata(ctx context.Context, assetID string) (map[string]any, error)
	PutMetadata(ctx context.Context, assetID string, meta map[string]any) error

	SaveTimeline(ctx context.Context, tl *timeline.Timeline) (*TimelineRecord, error)
	GetTimeline(ctx context.Context, id string) (*TimelineRecord, error)
	ListTimelines(ctx context.Context) ([]*TimelineRecord, error)
	DeleteTimeline(ctx context.Context, id string) error
	CountTimelines(ctx context.Context) (int, error)

	SaveReport(ctx context.Context, timelineID string, payload any) (*ReportRecord, error)
	ListReports(ctx context.Context, timelineID string, limit int) ([]*ReportRecord, error)
	CountReports(ctx context.Context) (int, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetMetadata returns the stored metadata map for an asset, or nil when
// the asset is unknown. Unknown assets are not an error; the extractor
// falls back to defaults.
func (r *SQLiteRepository) GetMetadata(ctx context.Context, assetID string) (map[string]any, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		"SELECT payload FROM asset_metadata WHERE asset_id = ?", assetID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(payload), &meta); err != nil {
		return nil, fmt.Errorf("corrupt metadata for asset %s: %w", assetID, err)
	}
	return meta, nil
}

func (r *SQLiteRepository) PutMetadata(ctx context.Context, assetID string, meta map[string]any) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO asset_metadata (asset_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, assetID, string(payload), time.Now().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) SaveTimeline(ctx context.Context, tl *timeline.Timeline) (*TimelineRecord, error) {
	if tl.ID == "" {
		tl.ID = uuid.NewString()
	}
	payload, err := json.Marshal(tl)
	if err != nil {
		return nil, fmt.Errorf("marshal timeline: %w", err)
	}

	now := time.Now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO timelines (id, name, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, payload = excluded.payload, updated_at = excluded.updated_at
	`, tl.ID, tl.Name, string(payload), now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	return &TimelineRecord{ID: tl.ID, Name: tl.Name, Timeline: tl, CreatedAt: now, UpdatedAt: now}, nil
}

func (r *SQLiteRepository) GetTimeline(ctx context.Context, id string) (*TimelineRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, payload, created_at, updated_at FROM timelines WHERE id = ?", id)
	return scanTimeline(row)
}

func scanTimeline(row *sql.Row) (*TimelineRecord, error) {
	var rec TimelineRecord
	var payload, createdAt, updatedAt string
	err := row.Scan(&rec.ID, &rec.Name, &payload, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var tl timeline.Timeline
	if err := json.Unmarshal([]byte(payload), &tl); err != nil {
		return nil, fmt.Errorf("corrupt timeline %s: %w", rec.ID, err)
	}
	rec.Timeline = &tl
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

func (r *SQLiteRepository) ListTimelines(ctx context.Context) ([]*TimelineRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, payload, created_at, updated_at FROM timelines ORDER BY updated_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*TimelineRecord
	for rows.Next() {
		var rec TimelineRecord
		var payload, createdAt, updatedAt string
		if err := rows.Scan(&rec.ID, &rec.Name, &payload, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		var tl timeline.Timeline
		if err := json.Unmarshal([]byte(payload), &tl); err != nil {
			return nil, fmt.Errorf("corrupt timeline %s: %w", rec.ID, err)
		}
		rec.Timeline = &tl
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (r *SQLiteRepository) DeleteTimeline(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM timelines WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) CountTimelines(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM timelines").Scan(&count)
	return count, err
}

func (r *SQLiteRepository) SaveReport(ctx context.Context, timelineID string, payload any) (*ReportRecord, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	rec := &ReportRecord{
		ID:         uuid.NewString(),
		TimelineID: timelineID,
		Payload:    data,
		CreatedAt:  time.Now(),
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reports (id, timeline_id, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, rec.ID, rec.TimelineID, string(data), rec.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *SQLiteRepository) ListReports(ctx context.Context, timelineID string, limit int) ([]*ReportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timeline_id, payload, created_at FROM reports
		WHERE timeline_id = ? ORDER BY created_at DESC LIMIT ?
	`, timelineID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ReportRecord
	for rows.Next() {
		var rec ReportRecord
		var payload, createdAt string
		if err := rows.Scan(&rec.ID, &rec.TimelineID, &payload, &createdAt); err != nil {
			return nil, err
		}
		rec.Payload = json.RawMessage(payload)
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (r *SQLiteRepository) CountReports(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports").Scan(&count)
	return count, err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
