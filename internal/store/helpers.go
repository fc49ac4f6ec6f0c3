package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/practica-ai/practica/internal/models"
)

// marshalDoc serializes an open document field (payload, metadata) for a
// nullable JSON column. Empty documents are stored as NULL.
func marshalDoc(doc map[string]any) (any, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document failed: %w", err)
	}
	return string(data), nil
}

// unmarshalDoc deserializes a document column. A corrupt document is
// logged and replaced by an empty map rather than failing the read.
func unmarshalDoc(raw sql.NullString) map[string]any {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	doc := make(map[string]any)
	if err := json.Unmarshal([]byte(raw.String), &doc); err != nil {
		slog.Error("store: document unmarshal failed, continuing with empty document", "error", err)
		return make(map[string]any)
	}
	return doc
}

// scanTurn scans a ConversationTurn from sql.Rows. Column order must be
// seq, id, user_id, channel_id, speaker, content, metadata, created_at, closed_at.
func scanTurn(rows *sql.Rows) (models.ConversationTurn, error) {
	var t models.ConversationTurn
	var speaker string
	var metadata sql.NullString
	var closedAt sql.NullTime
	err := rows.Scan(&t.Seq, &t.ID, &t.UserID, &t.ChannelID, &speaker, &t.Content, &metadata, &t.CreatedAt, &closedAt)
	if err != nil {
		return t, fmt.Errorf("scan turn failed: %w", err)
	}
	t.Speaker = models.Speaker(speaker)
	t.Metadata = unmarshalDoc(metadata)
	if closedAt.Valid {
		t.ClosedAt = &closedAt.Time
	}
	return t, nil
}
