package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	"github.com/hostsel/hostsel/dbnotify"
	"github.com/hostsel/hostsel/dbutil"
	"github.com/hostsel/hostsel/model"
)

// Tables whose changes are announced through dbnotify.
const (
	SettingsTable = "settings"
	RunsTable     = "allocation_history"
)

type DBStorage struct {
	// lock serializes writers.  Readers go straight to the pool.
	lock sync.Mutex
	db   *sql.DB
}

var _ Storage = &DBStorage{}

// NewDBStorage wraps an open handle; see dbutil.Connect.
func NewDBStorage(db *sql.DB) *DBStorage {
	return &DBStorage{db: db}
}

func (s *DBStorage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnf("closing database: %v", err)
	}
}

const participantColumns = `participant_id, name, preferences, is_submitted, submitted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (*model.Participant, error) {
	p := &model.Participant{}
	var prefs []byte
	var submittedAt sql.NullTime
	if err := row.Scan(&p.ParticipantID, &p.Name, &prefs, &p.IsSubmitted, &submittedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(prefs, &p.Preferences); err != nil {
		return nil, fmt.Errorf("participant %q: bad preferences: %w", p.ParticipantID, err)
	}
	if submittedAt.Valid {
		at := submittedAt.Time
		p.SubmittedAt = &at
	}
	return p, nil
}

func (s *DBStorage) FetchParticipants(ctx context.Context, onlySubmitted bool) ([]*model.Participant, error) {
	q := `SELECT ` + participantColumns + ` FROM participants`
	if onlySubmitted {
		q += ` WHERE is_submitted`
	}
	q += ` ORDER BY is_submitted DESC, name ASC, participant_id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ps := []*model.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ps, nil
}

func (s *DBStorage) FetchParticipant(ctx context.Context, id string) (*model.Participant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE participant_id=$1`, id)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("participant %q: %w", id, ErrNotFound)
	}
	return p, err
}

func (s *DBStorage) SaveParticipants(ctx context.Context, ps []*model.Participant) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	tx, err := dbutil.NewTx(ctx, s.db, nil)
	if err != nil {
		return err
	}
	defer tx.MaybeRollback()

	for _, p := range ps {
		prefs := p.Preferences
		if prefs == nil {
			prefs = []string{}
		}
		bytes, err := json.Marshal(prefs)
		if err != nil {
			return err
		}
		var submittedAt sql.NullTime
		if p.SubmittedAt != nil {
			submittedAt = sql.NullTime{Time: *p.SubmittedAt, Valid: true}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO participants (`+participantColumns+`) VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (participant_id) DO UPDATE SET
			   name=EXCLUDED.name, preferences=EXCLUDED.preferences,
			   is_submitted=EXCLUDED.is_submitted, submitted_at=EXCLUDED.submitted_at`,
			p.ParticipantID, p.Name, string(bytes), p.IsSubmitted, submittedAt); err != nil {
			return fmt.Errorf("saving participant %q: %w", p.ParticipantID, err)
		}
	}
	return tx.Commit()
}

func (s *DBStorage) ResetParticipant(ctx context.Context, id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE participants SET preferences='[]', is_submitted=FALSE, submitted_at=NULL WHERE participant_id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("participant %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *DBStorage) ResetAllParticipants(ctx context.Context) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	tx, err := dbutil.NewTx(ctx, s.db, nil)
	if err != nil {
		return 0, err
	}
	defer tx.MaybeRollback()

	result, err := tx.Exec(ctx,
		`UPDATE participants SET preferences='[]', is_submitted=FALSE, submitted_at=NULL`)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := clearCurrent(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	log.Infof("reset preferences for %d participants", n)
	return n, nil
}

func (s *DBStorage) ClearAll(ctx context.Context, history bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	tx, err := dbutil.NewTx(ctx, s.db, nil)
	if err != nil {
		return err
	}
	defer tx.MaybeRollback()

	if err := clearCurrent(ctx, tx); err != nil {
		return err
	}
	if history {
		if _, err := tx.Exec(ctx, `DELETE FROM allocation_history`); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM participants`); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.WithField("history", history).Info("cleared all participants")
	return nil
}

// clearCurrent drops the current allocation and tells listeners, with an
// empty key, that there is none.
func clearCurrent(ctx context.Context, tx *dbutil.Tx) error {
	if err := tx.ExecAll(ctx,
		`DELETE FROM allocations`,
		`UPDATE allocation_history SET cleared=TRUE WHERE NOT cleared`); err != nil {
		return err
	}
	return notify(ctx, tx, RunsTable, "")
}

func (s *DBStorage) FetchSettings(ctx context.Context) (*model.Settings, error) {
	var bytes []byte
	err := s.db.QueryRowContext(ctx, `SELECT model_data FROM settings WHERE settings_id=1`).Scan(&bytes)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("no stored settings, using defaults")
		return model.DefaultSettings(), nil
	} else if err != nil {
		return nil, err
	}
	settings := &model.Settings{}
	if err := json.Unmarshal(bytes, settings); err != nil {
		return nil, fmt.Errorf("stored settings: %w", err)
	}
	return settings, nil
}

func (s *DBStorage) SaveSettings(ctx context.Context, settings *model.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	bytes, err := json.Marshal(settings)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	tx, err := dbutil.NewTx(ctx, s.db, nil)
	if err != nil {
		return err
	}
	defer tx.MaybeRollback()

	if _, err := tx.Exec(ctx,
		`INSERT INTO settings (settings_id, optimistic_lock, model_data) VALUES (1, 0, $1)
		 ON CONFLICT (settings_id) DO UPDATE SET
		   model_data=EXCLUDED.model_data, optimistic_lock=settings.optimistic_lock+1`,
		string(bytes)); err != nil {
		return err
	}
	if err := notify(ctx, tx, SettingsTable, ""); err != nil {
		return err
	}
	return tx.Commit()
}

// notify announces a change to listeners once tx commits.
func notify(ctx context.Context, tx *dbutil.Tx, table, key string) error {
	payload, err := dbnotify.Payload(table, key)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, dbnotify.Channel(table), payload); err != nil {
		return fmt.Errorf("notifying %s: %w", table, err)
	}
	return nil
}

func (s *DBStorage) ReplaceAllocation(ctx context.Context, run *model.Run) error {
	bytes, err := json.Marshal(run)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	tx, err := dbutil.NewTx(ctx, s.db, nil)
	if err != nil {
		return err
	}
	defer tx.MaybeRollback()

	if _, err := tx.Exec(ctx,
		`INSERT INTO allocation_history (run_id, generated_at, allocated, unallocated, model_data)
		 VALUES ($1, $2, $3, $4, $5)`,
		run.RunID, run.GeneratedAt, run.Result.Stats.Allocated, run.Result.Stats.Unallocated, string(bytes)); err != nil {
		return fmt.Errorf("recording run %s: %w", run.RunID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM allocations`); err != nil {
		return err
	}
	for _, a := range run.Result.Assignments {
		for slot, instructor := range a.Instructors {
			if _, err := tx.Exec(ctx,
				`INSERT INTO allocations (participant_id, time_slot, instructor, run_id) VALUES ($1, $2, $3, $4)`,
				a.Participant.ID, slot+1, string(instructor), run.RunID); err != nil {
				return fmt.Errorf("saving allocation for %q: %w", a.Participant.ID, err)
			}
		}
	}
	if err := notify(ctx, tx, RunsTable, run.RunID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"run_id":      run.RunID,
		"assignments": len(run.Result.Assignments),
	}).Info("allocation replaced")
	return nil
}

// newestFirst orders history newest first.  Runs stamped in the same second
// fall back to insertion order.
const newestFirst = `generated_at DESC, seq DESC`

func (s *DBStorage) fetchRunWhere(ctx context.Context, what, where string, args ...any) (*model.Run, error) {
	var bytes []byte
	err := s.db.QueryRowContext(ctx, `SELECT model_data FROM allocation_history `+where, args...).Scan(&bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
	} else if err != nil {
		return nil, err
	}
	run := &model.Run{}
	if err := json.Unmarshal(bytes, run); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return run, nil
}

func (s *DBStorage) FetchCurrentRun(ctx context.Context) (*model.Run, error) {
	return s.fetchRunWhere(ctx, "current run", `WHERE NOT cleared ORDER BY `+newestFirst+` LIMIT 1`)
}

func (s *DBStorage) FetchRun(ctx context.Context, id string) (*model.Run, error) {
	return s.fetchRunWhere(ctx, fmt.Sprintf("run %s", id), `WHERE run_id::text=$1`, id)
}

func (s *DBStorage) FetchRunSlugs(ctx context.Context, offset, limit int) ([]*model.RunSlug, error) {
	// LIMIT NULL is LIMIT ALL.
	var lim any = limit
	if limit < 0 {
		lim = nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id::text, generated_at, allocated, unallocated FROM allocation_history
		 ORDER BY `+newestFirst+` OFFSET $1 LIMIT $2`, max(offset, 0), lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slugs := []*model.RunSlug{}
	for rows.Next() {
		slug := &model.RunSlug{}
		if err := rows.Scan(&slug.RunID, &slug.GeneratedAt, &slug.Allocated, &slug.Unallocated); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return slugs, nil
}

func (s *DBStorage) CountRuns(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM allocation_history`).Scan(&n)
	return n, err
}

func (s *DBStorage) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM allocation_history
		 WHERE generated_at < $1
		   AND run_id <> (SELECT run_id FROM allocation_history ORDER BY `+newestFirst+` LIMIT 1)`,
		before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
