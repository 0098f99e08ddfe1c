package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/entitybridge/internal/entitystate"
	"github.com/roach88/entitybridge/internal/ir"
)

// Transition is one transition log entry.
type Transition struct {
	ID        string
	EntityID  string
	Seq       int64
	Action    entitystate.Action
	FromState entitystate.State
	ToState   entitystate.State
	Version   int64
	Sys       ir.EntitySys
}

func appendTransition(ctx context.Context, tx *sql.Tx, action entitystate.Action, from, to entitystate.State, sys ir.EntitySys) error {
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM transitions`).Scan(&seq); err != nil {
		return fmt.Errorf("append transition: next seq: %w", err)
	}

	id, err := ir.TransitionID(ir.TransitionRecord{
		EntityID:  sys.ID,
		Action:    string(action),
		FromState: string(from),
		ToState:   string(to),
		Version:   sys.Version,
		Seq:       seq,
	})
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	snapshot, err := marshalSys(sys)
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transitions
		(id, entity_id, seq, action, from_state, to_state, version, sys)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		id, sys.ID, seq, string(action), string(from), string(to), sys.Version, snapshot,
	)
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	return nil
}

// Transitions returns the log for one entity in seq order. An empty
// entityID returns the whole log.
func (s *Store) Transitions(ctx context.Context, entityID string) ([]Transition, error) {
	query := `SELECT id, entity_id, seq, action, from_state, to_state, version, sys FROM transitions`
	var args []any
	if entityID != "" {
		query += ` WHERE entity_id = ?`
		args = append(args, entityID)
	}
	query += ` ORDER BY seq ASC, id ASC COLLATE BINARY`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			t                Transition
			action, from, to string
			snapshot         []byte
		)
		if err := rows.Scan(&t.ID, &t.EntityID, &t.Seq, &action, &from, &to, &t.Version, &snapshot); err != nil {
			return nil, fmt.Errorf("read transitions: %w", err)
		}
		t.Action = entitystate.Action(action)
		t.FromState = entitystate.State(from)
		t.ToState = entitystate.State(to)
		if t.Sys, err = unmarshalSys(snapshot); err != nil {
			return nil, fmt.Errorf("read transitions: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read transitions: %w", err)
	}
	return out, nil
}
