package journal

import (
	"time"

	"github.com/google/uuid"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

type Entry struct {
	ID        string    `json:"id"`
	Direction string    `json:"direction"`
	Kind      string    `json:"kind"`
	SyncID    string    `json:"syncId"`
	Target    int64     `json:"target"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

func (db *DB) insert(e Entry) (*Entry, error) {
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()
	_, err := db.Exec(`
		INSERT INTO entries (id, direction, kind, sync_id, target, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Direction, e.Kind, e.SyncID, e.Target, e.Payload, e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// RecordInbound stores one routed event.
func (db *DB) RecordInbound(eventType, syncID string, data []byte) error {
	_, err := db.insert(Entry{
		Direction: DirectionIn,
		Kind:      eventType,
		SyncID:    syncID,
		Payload:   string(data),
	})
	return err
}

// RecordOutbound stores one frame written to the gateway.
func (db *DB) RecordOutbound(command string, target int64, frame []byte) error {
	_, err := db.insert(Entry{
		Direction: DirectionOut,
		Kind:      command,
		Target:    target,
		Payload:   string(frame),
	})
	return err
}

// Recent returns up to limit entries, oldest first. kind filters by event
// type or command when non-empty.
func (db *DB) Recent(kind string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT id, direction, kind, sync_id, target, payload, created_at
		FROM entries ORDER BY created_at DESC, rowid DESC LIMIT ?
	`
	args := []any{limit}
	if kind != "" {
		query = `
			SELECT id, direction, kind, sync_id, target, payload, created_at
			FROM entries WHERE kind = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
		`
		args = []any{kind, limit}
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Direction, &e.Kind, &e.SyncID, &e.Target, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Prune deletes entries older than before and returns how many went.
func (db *DB) Prune(before time.Time) (int64, error) {
	res, err := db.Exec("DELETE FROM entries WHERE created_at < ?", before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
