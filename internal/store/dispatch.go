package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/dispatch"
)

// Dispatch is one recorded notification attempt.
type Dispatch struct {
	ID          string    `json:"id"`
	FingerCount int       `json:"finger_count"`
	Action      string    `json:"action"`
	State       string    `json:"state"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DispatchRepository stores notification attempts.
type DispatchRepository struct {
	db *sql.DB
}

// Dispatches returns the dispatch repository for this store.
func (s *Store) Dispatches() *DispatchRepository {
	return &DispatchRepository{db: s.db}
}

// Create inserts d, assigning an ID and timestamp when they are unset.
func (r *DispatchRepository) Create(ctx context.Context, d *Dispatch) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dispatches (id, finger_count, action, state, outcome, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.FingerCount, d.Action, d.State, d.Outcome, d.Error, d.CreatedAt,
	)
	return err
}

// GetByID retrieves a dispatch by its ID.
func (r *DispatchRepository) GetByID(ctx context.Context, id string) (*Dispatch, error) {
	d := &Dispatch{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, finger_count, action, state, outcome, error, created_at
		 FROM dispatches WHERE id = ?`,
		id,
	).Scan(&d.ID, &d.FingerCount, &d.Action, &d.State, &d.Outcome, &d.Error, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// List returns up to limit dispatches, newest first. limit <= 0 returns all.
func (r *DispatchRepository) List(ctx context.Context, limit int) ([]*Dispatch, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, finger_count, action, state, outcome, error, created_at
		 FROM dispatches ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dispatches := []*Dispatch{}
	for rows.Next() {
		d := &Dispatch{}
		if err := rows.Scan(&d.ID, &d.FingerCount, &d.Action, &d.State, &d.Outcome, &d.Error, &d.CreatedAt); err != nil {
			return nil, err
		}
		dispatches = append(dispatches, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return dispatches, nil
}

// Latest returns the newest dispatch, or ErrNotFound when there is none.
func (r *DispatchRepository) Latest(ctx context.Context) (*Dispatch, error) {
	list, err := r.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

// Recorder adapts the repository to dispatch.Recorder.
type Recorder struct {
	repo   *DispatchRepository
	action string
}

// NewRecorder returns a recorder storing results under action.
func NewRecorder(repo *DispatchRepository, action string) *Recorder {
	return &Recorder{repo: repo, action: action}
}

// Record stores an attempted dispatch. Results that never reached the sink
// are ignored.
func (r *Recorder) Record(ctx context.Context, res dispatch.Result) error {
	if !res.Attempted() {
		return nil
	}

	d := &Dispatch{
		FingerCount: res.Count,
		Action:      r.action,
		State:       res.State,
		Outcome:     res.Outcome.String(),
		CreatedAt:   res.At,
	}
	if res.Err != nil {
		d.Error = res.Err.Error()
	}
	return r.repo.Create(ctx, d)
}
