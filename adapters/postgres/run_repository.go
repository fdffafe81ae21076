package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"ligandscreen/domain/core"
	"ligandscreen/domain/screening"
	"ligandscreen/internal/errors"
	"ligandscreen/ports"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
)

// RunRepositoryImpl implements RunRepository for PostgreSQL
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a new PostgreSQL run repository
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &RunRepositoryImpl{db: db}
}

// runRow is the screening_runs row shape
type runRow struct {
	ID              string             `db:"id"`
	TotalScreened   int                `db:"total_screened"`
	TruncatedFrom   int                `db:"truncated_from"`
	Attempted       int                `db:"attempted"`
	Failed          int                `db:"failed"`
	PassedThreshold int                `db:"passed_threshold"`
	TopCandidates   types.JSONText     `db:"top_candidates"`
	ProcessingMs    float64            `db:"processing_ms"`
	TopRationale    sql.NullString     `db:"top_rationale"`
	Summary         types.NullJSONText `db:"summary"`
	Params          types.JSONText     `db:"params"`
	Target          types.JSONText     `db:"target"`
	Cancelled       bool               `db:"cancelled"`
	CreatedAt       time.Time          `db:"created_at"`
}

const runColumns = `id, total_screened, truncated_from, attempted, failed, passed_threshold, top_candidates,
	processing_ms, top_rationale, summary, params, target, cancelled, created_at`

// Save inserts a run. Runs are immutable; an existing ID is a conflict.
func (r *RunRepositoryImpl) Save(ctx context.Context, run *screening.ScreeningRun) error {
	row, err := toRow(run)
	if err != nil {
		return errors.Wrap(err, "failed to encode screening run")
	}

	res, err := r.db.NamedExecContext(ctx, `
		INSERT INTO screening_runs (`+runColumns+`)
		VALUES (:id, :total_screened, :truncated_from, :attempted, :failed, :passed_threshold, :top_candidates,
			:processing_ms, :top_rationale, :summary, :params, :target, :cancelled, :created_at)
		ON CONFLICT (id) DO NOTHING
	`, row)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "insert screening run"))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Conflict("screening run " + run.ID.String() + " already exists")
	}
	return nil
}

// Get retrieves a run by ID
func (r *RunRepositoryImpl) Get(ctx context.Context, id core.RunID) (*screening.ScreeningRun, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `SELECT `+runColumns+` FROM screening_runs WHERE id = $1`, id.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("screening run " + id.String())
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "get screening run"))
	}
	return fromRow(row)
}

// List returns runs newest first, optionally limited
func (r *RunRepositoryImpl) List(ctx context.Context, limit int) ([]*screening.ScreeningRun, error) {
	query := `SELECT ` + runColumns + ` FROM screening_runs ORDER BY created_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "list screening runs"))
	}

	runs := make([]*screening.ScreeningRun, 0, len(rows))
	for _, row := range rows {
		run, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func toRow(run *screening.ScreeningRun) (runRow, error) {
	top := run.TopCandidates
	if top == nil {
		top = []screening.ScoredCandidate{}
	}
	topJSON, err := json.Marshal(top)
	if err != nil {
		return runRow{}, err
	}
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return runRow{}, err
	}
	targetJSON, err := json.Marshal(run.Target)
	if err != nil {
		return runRow{}, err
	}

	row := runRow{
		ID:              run.ID.String(),
		TotalScreened:   run.TotalScreened,
		TruncatedFrom:   run.TruncatedFrom,
		Attempted:       run.Attempted,
		Failed:          run.Failed,
		PassedThreshold: run.PassedThreshold,
		TopCandidates:   types.JSONText(topJSON),
		ProcessingMs:    float64(run.ProcessingDuration.Microseconds()) / 1000,
		Params:          types.JSONText(paramsJSON),
		Target:          types.JSONText(targetJSON),
		Cancelled:       run.Cancelled,
		CreatedAt:       run.CreatedAt,
	}
	if run.TopRationale != nil {
		row.TopRationale = sql.NullString{String: *run.TopRationale, Valid: true}
	}
	if run.Summary != nil {
		summaryJSON, err := json.Marshal(run.Summary)
		if err != nil {
			return runRow{}, err
		}
		row.Summary = types.NullJSONText{JSONText: types.JSONText(summaryJSON), Valid: true}
	}
	return row, nil
}

func fromRow(row runRow) (*screening.ScreeningRun, error) {
	run := &screening.ScreeningRun{
		ID:                 core.RunID(row.ID),
		TotalScreened:      row.TotalScreened,
		TruncatedFrom:      row.TruncatedFrom,
		Attempted:          row.Attempted,
		Failed:             row.Failed,
		PassedThreshold:    row.PassedThreshold,
		ProcessingDuration: time.Duration(row.ProcessingMs * float64(time.Millisecond)),
		Cancelled:          row.Cancelled,
		CreatedAt:          row.CreatedAt,
	}
	if err := row.TopCandidates.Unmarshal(&run.TopCandidates); err != nil {
		return nil, errors.Wrap(err, "decode top_candidates")
	}
	if err := row.Params.Unmarshal(&run.Params); err != nil {
		return nil, errors.Wrap(err, "decode params")
	}
	if err := row.Target.Unmarshal(&run.Target); err != nil {
		return nil, errors.Wrap(err, "decode target")
	}
	if row.TopRationale.Valid {
		text := row.TopRationale.String
		run.TopRationale = &text
	}
	if row.Summary.Valid {
		var s screening.AffinitySummary
		if err := row.Summary.Unmarshal(&s); err != nil {
			return nil, errors.Wrap(err, "decode summary")
		}
		run.Summary = &s
	}
	return run, nil
}
