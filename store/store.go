// Package store - SQLite persistence of detection runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-cec/images"
	"github.com/nvr-ai/go-cec/models/postprocess"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// Run is one processed image and the objects kept for it.
type Run struct {
	// ID identifies the run. SaveRun assigns one when it is zero.
	ID uuid.UUID `json:"id"`
	// Image is the path of the processed image.
	Image string `json:"image"`
	// CheckImage is the path of the evidence image, if reconciled.
	CheckImage string `json:"check_image,omitempty"`
	// Classes are the queried class names.
	Classes []string `json:"classes"`
	// CreatedAt is when the run was recorded, millisecond precision.
	CreatedAt time.Time `json:"created_at"`
	// Objects are the kept objects in order.
	Objects postprocess.Set `json:"objects"`
}

// Store persists detection runs in a SQLite database.
type Store struct {
	db  *sql.DB
	log logrus.FieldLogger
	now func() time.Time
}

// Open opens or creates the database at path and applies migrations.
//
// Arguments:
//   - path: The database file.
//   - log: The logger. Nil uses the standard logger.
//
// Returns:
//   - *Store: The store.
//   - error: An error if the database cannot be opened or migrated.
func Open(path string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	// A single connection keeps pragmas and transactions on one handle.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	s := &Store{db: db, log: log, now: time.Now}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun records a run and its objects in one transaction.
//
// Arguments:
//   - ctx: The context for the write.
//   - run: The run. A zero ID and CreatedAt are filled in.
//
// Returns:
//   - uuid.UUID: The run id.
//   - error: An error if the write fails.
func (s *Store) SaveRun(ctx context.Context, run Run) (uuid.UUID, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	classes, err := json.Marshal(run.Classes)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to encode classes")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, image, check_image, classes, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID.String(), run.Image, run.CheckImage, string(classes), run.CreatedAt.UnixMilli(),
	); err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to insert run")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO objects (run_id, position, class, class_id, confidence, x1, y1, x2, y2)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to prepare object insert")
	}
	defer stmt.Close()

	for i, o := range run.Objects {
		if _, err := stmt.ExecContext(ctx,
			run.ID.String(), i, o.ClassName, o.ClassID, float64(o.Confidence),
			o.Box.X1, o.Box.Y1, o.Box.X2, o.Box.Y2,
		); err != nil {
			return uuid.Nil, errors.Wrapf(err, "failed to insert object %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to commit run")
	}
	s.log.WithFields(logrus.Fields{
		"run":     run.ID.String(),
		"objects": len(run.Objects),
	}).Debug("saved run")
	return run.ID, nil
}

// Run loads a run with its objects.
//
// Arguments:
//   - ctx: The context for the read.
//   - id: The run id.
//
// Returns:
//   - *Run: The run.
//   - error: ErrRunNotFound if no run has id.
func (s *Store) Run(ctx context.Context, id uuid.UUID) (*Run, error) {
	var (
		run       = Run{ID: id}
		classes   string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT image, check_image, classes, created_at FROM runs WHERE run_id = ?`,
		id.String(),
	).Scan(&run.Image, &run.CheckImage, &classes, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrRunNotFound, "%s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query run")
	}
	if err := json.Unmarshal([]byte(classes), &run.Classes); err != nil {
		return nil, errors.Wrap(err, "failed to decode classes")
	}
	run.CreatedAt = time.UnixMilli(createdAt)

	run.Objects, err = s.Objects(ctx, id)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Objects loads the objects of a run in their saved order.
//
// Arguments:
//   - ctx: The context for the read.
//   - id: The run id.
//
// Returns:
//   - postprocess.Set: The objects, empty for an unknown run.
//   - error: An error if the query fails.
func (s *Store) Objects(ctx context.Context, id uuid.UUID) (postprocess.Set, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT class, class_id, confidence, x1, y1, x2, y2
		FROM objects WHERE run_id = ? ORDER BY position`,
		id.String(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query objects")
	}
	defer rows.Close()

	set := postprocess.Set{}
	for rows.Next() {
		var (
			o          postprocess.Object
			confidence float64
			b          images.Box
		)
		if err := rows.Scan(&o.ClassName, &o.ClassID, &confidence, &b.X1, &b.Y1, &b.X2, &b.Y2); err != nil {
			return nil, errors.Wrap(err, "failed to scan object")
		}
		o.Confidence = float32(confidence)
		o.Box = b
		set = append(set, o)
	}
	return set, errors.Wrap(rows.Err(), "failed to read objects")
}

// ClassCounts returns how many stored objects each class has across runs.
func (s *Store) ClassCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT class, COUNT(*) FROM objects GROUP BY class`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query class counts")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			class string
			n     int
		)
		if err := rows.Scan(&class, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan class count")
		}
		counts[class] = n
	}
	return counts, errors.Wrap(rows.Err(), "failed to read class counts")
}
