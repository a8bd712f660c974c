package store

import (
	"context"
	"encoding/json"
	"time"

	"ewallet/internal/models"
)

type AuditStore struct {
	db DB
}

// AuditInput is one activity record. Data holds request metadata such as
// the client IP and is stored as a JSON object.
type AuditInput struct {
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Data       map[string]string
}

type auditRow struct {
	ID          string    `db:"id"`
	ActorUserID *string   `db:"actor_user_id"`
	Action      string    `db:"action"`
	EntityType  string    `db:"entity_type"`
	EntityID    string    `db:"entity_id"`
	Data        []byte    `db:"data"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r auditRow) toModel() (models.AuditEntry, error) {
	entry := models.AuditEntry{
		ID:          r.ID,
		ActorUserID: r.ActorUserID,
		Action:      r.Action,
		EntityType:  r.EntityType,
		EntityID:    r.EntityID,
		Data:        map[string]string{},
		CreatedAt:   r.CreatedAt,
	}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &entry.Data); err != nil {
			return models.AuditEntry{}, invalidRecord(err, "audit_log", "data", string(r.Data))
		}
	}
	return entry, nil
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Log(ctx context.Context, tx Execer, input AuditInput) error {
	data := input.Data
	if data == nil {
		data = map[string]string{}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_logs (actor_user_id, action, entity_type, entity_id, data)
		VALUES ($1, $2, $3, $4, $5)
	`, input.ActorID, input.Action, input.EntityType, input.EntityID, string(encoded))
	return err
}

// ListByActor returns the newest entries first.
func (s *AuditStore) ListByActor(ctx context.Context, actorID string, limit int) ([]models.AuditEntry, error) {
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_user_id, action, entity_type, entity_id, data, created_at
		FROM audit_logs
		WHERE actor_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, actorID, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]models.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toModel()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
