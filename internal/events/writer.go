package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"teaminova/internal/db"
)

// SystemActor is recorded when a command runs without a member behind it.
const SystemActor = "system"

// Writer appends rows to the audit log. It holds no connection; every
// append joins the transaction of the command that produced it.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

type record struct {
	id, ts, kind, entityID, actor string
	evtType, projectID, payload   string
}

// Append records an audit event inside the caller's transaction.
func (w Writer) Append(ctx context.Context, tx db.DBTX, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	rec, err := w.build(evtType, projectID, entityKind, entityID, actorID, payload)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events(id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?,?)`,
		rec.id, rec.ts, rec.evtType, optional(rec.projectID), rec.kind, optional(rec.entityID), rec.actor, rec.payload,
	); err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func (w Writer) build(evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) (record, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return record{}, fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = SystemActor
	}
	// v7 ids sort by creation and break ties between events sharing a timestamp.
	id, err := uuid.NewV7()
	if err != nil {
		return record{}, err
	}
	return record{
		id:        id.String(),
		ts:        now().UTC().Format(time.RFC3339Nano),
		evtType:   evtType,
		projectID: projectID,
		kind:      entityKind,
		entityID:  entityID,
		actor:     actorID,
		payload:   string(data),
	}, nil
}

func optional(v string) any {
	if v == "" {
		return nil
	}
	return v
}
