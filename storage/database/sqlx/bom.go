package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/labportal/core/bom"
)

const bomColumns = `id, student_id, guide_id, team_id, sl_no, sprint_no, date, part_name, consumable_name,
	specification, qty, length, width, thickness, weight, stage, guide_approved_at, lab_approved_by,
	lab_approved_at, rejection_reason, edit_history, created_at, updated_at`

type (
	bomRow struct {
		ID              string          `db:"id"`
		StudentID       string          `db:"student_id"`
		GuideID         string          `db:"guide_id"`
		TeamID          null.String     `db:"team_id"`
		SlNo            string          `db:"sl_no"`
		SprintNo        string          `db:"sprint_no"`
		Date            time.Time       `db:"date"`
		PartName        string          `db:"part_name"`
		ConsumableName  string          `db:"consumable_name"`
		Specification   string          `db:"specification"`
		Qty             int             `db:"qty"`
		Length          float64         `db:"length"`
		Width           float64         `db:"width"`
		Thickness       float64         `db:"thickness"`
		Weight          float64         `db:"weight"`
		Stage           string          `db:"stage"`
		GuideApprovedAt null.Time       `db:"guide_approved_at"`
		LabApprovedBy   null.String     `db:"lab_approved_by"`
		LabApprovedAt   null.Time       `db:"lab_approved_at"`
		RejectionReason null.String     `db:"rejection_reason"`
		EditHistory     bom.EditHistory `db:"edit_history"`
		CreatedAt       time.Time       `db:"created_at"`
		UpdatedAt       time.Time       `db:"updated_at"`
	}

	bomRepository struct {
		db *sqlx.DB
	}
)

var _ bom.Repository = (*bomRepository)(nil) // interface compliance check

func NewBOMRepository(db *sqlx.DB) bom.Repository {
	return &bomRepository{db: db}
}

func toBOMRow(r bom.Request) bomRow {
	return bomRow{
		ID:              r.ID,
		StudentID:       r.StudentID,
		GuideID:         r.GuideID,
		TeamID:          null.NewString(r.TeamID, r.TeamID != ""),
		SlNo:            r.SlNo,
		SprintNo:        r.SprintNo,
		Date:            r.Date.UTC(),
		PartName:        r.PartName,
		ConsumableName:  r.ConsumableName,
		Specification:   r.Specification,
		Qty:             r.Qty,
		Length:          r.Length,
		Width:           r.Width,
		Thickness:       r.Thickness,
		Weight:          r.Weight,
		Stage:           string(r.Stage),
		GuideApprovedAt: null.NewTime(r.GuideApprovedAt.UTC(), !r.GuideApprovedAt.IsZero()),
		LabApprovedBy:   null.NewString(r.LabApprovedBy, r.LabApprovedBy != ""),
		LabApprovedAt:   null.NewTime(r.LabApprovedAt.UTC(), !r.LabApprovedAt.IsZero()),
		RejectionReason: null.NewString(r.RejectionReason, r.RejectionReason != ""),
		EditHistory:     r.EditHistory,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func (row bomRow) request() bom.Request {
	d := row.Date.UTC()
	return bom.Request{
		ID:              row.ID,
		StudentID:       row.StudentID,
		GuideID:         row.GuideID,
		TeamID:          row.TeamID.String,
		SlNo:            row.SlNo,
		SprintNo:        row.SprintNo,
		Date:            time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
		PartName:        row.PartName,
		ConsumableName:  row.ConsumableName,
		Specification:   row.Specification,
		Qty:             row.Qty,
		Length:          row.Length,
		Width:           row.Width,
		Thickness:       row.Thickness,
		Weight:          row.Weight,
		Stage:           bom.Stage(row.Stage),
		GuideApprovedAt: row.GuideApprovedAt.Time.UTC(),
		LabApprovedBy:   row.LabApprovedBy.String,
		LabApprovedAt:   row.LabApprovedAt.Time.UTC(),
		RejectionReason: row.RejectionReason.String,
		EditHistory:     row.EditHistory,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

func (repo *bomRepository) CreateRequest(ctx context.Context, r bom.Request) (bom.Request, error) {
	r.ID = uuid.New().String()
	row := toBOMRow(r)
	q := `INSERT INTO bom_requests (` + bomColumns + `) VALUES (
		:id, :student_id, :guide_id, :team_id, :sl_no, :sprint_no, :date, :part_name, :consumable_name,
		:specification, :qty, :length, :width, :thickness, :weight, :stage, :guide_approved_at, :lab_approved_by,
		:lab_approved_at, :rejection_reason, :edit_history, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return bom.Request{}, errors.Wrap(err, "inserting BOM request")
	}
	return row.request(), nil
}

func getRequest(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (bomRow, error) {
	var row bomRow
	if _, err := uuid.Parse(id); err != nil {
		return row, bom.ErrNotFound
	}
	stmt := "SELECT " + bomColumns + " FROM bom_requests WHERE id = $1"
	if forUpdate {
		stmt += " FOR UPDATE"
	}
	if err := sqlx.GetContext(ctx, q, &row, stmt, id); err != nil {
		return row, trapNoRowsErr(err, bom.ErrNotFound, "finding BOM request")
	}
	return row, nil
}

func (repo *bomRepository) GetRequest(ctx context.Context, id string) (bom.Request, error) {
	row, err := getRequest(ctx, repo.db, id, false)
	if err != nil {
		return bom.Request{}, err
	}
	return row.request(), nil
}

func (repo *bomRepository) QueryRequests(ctx context.Context, filter bom.QueryFilter) ([]bom.Request, error) {
	var (
		conds []string
		args  []interface{}
	)

	switch {
	case filter.StudentID != "" && filter.TeamID != "":
		conds = append(conds, "(student_id = ? OR team_id = ?)")
		args = append(args, filter.StudentID, filter.TeamID)
	case filter.StudentID != "":
		conds = append(conds, "student_id = ?")
		args = append(args, filter.StudentID)
	case filter.TeamID != "":
		conds = append(conds, "team_id = ?")
		args = append(args, filter.TeamID)
	}
	if filter.GuideID != "" {
		conds = append(conds, "guide_id = ?")
		args = append(args, filter.GuideID)
	}
	if len(filter.Stages) > 0 {
		stages := make([]string, 0, len(filter.Stages))
		for _, s := range filter.Stages {
			stages = append(stages, string(s))
		}
		conds = append(conds, "stage IN (?)")
		args = append(args, stages)
	}

	q := "SELECT " + bomColumns + " FROM bom_requests"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC"

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building BOM requests query")
	}

	var rows []bomRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying BOM requests")
	}
	requests := make([]bom.Request, 0, len(rows))
	for _, row := range rows {
		requests = append(requests, row.request())
	}
	return requests, nil
}

// inTx runs fn in a transaction, committed only if fn succeeds.
func (repo *bomRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// UpdateRequest locks the row (SELECT ... FOR UPDATE) for the whole read-modify-write.
func (repo *bomRepository) UpdateRequest(ctx context.Context, id string, fn bom.Mutation) (bom.Request, error) {
	var updated bom.Request
	err := repo.inTx(ctx, func(tx *sqlx.Tx) error {
		row, err := getRequest(ctx, tx, id, true)
		if err != nil {
			return err
		}

		r := row.request()
		changed, err := fn(&r)
		if err != nil {
			return err
		}
		if !changed {
			updated = row.request()
			return nil
		}

		q := `UPDATE bom_requests SET
			sl_no = :sl_no, sprint_no = :sprint_no, date = :date, part_name = :part_name,
			consumable_name = :consumable_name, specification = :specification, qty = :qty,
			length = :length, width = :width, thickness = :thickness, weight = :weight, stage = :stage,
			guide_approved_at = :guide_approved_at, lab_approved_by = :lab_approved_by,
			lab_approved_at = :lab_approved_at, rejection_reason = :rejection_reason,
			edit_history = :edit_history, updated_at = :updated_at
			WHERE id = :id`
		newRow := toBOMRow(r)
		if _, err = tx.NamedExecContext(ctx, q, newRow); err != nil {
			return errors.Wrap(err, "updating BOM request")
		}
		updated = newRow.request()
		return nil
	})
	if err != nil {
		return bom.Request{}, err
	}
	return updated, nil
}

func (repo *bomRepository) DeleteRequest(ctx context.Context, id string, check func(r bom.Request) error) error {
	return repo.inTx(ctx, func(tx *sqlx.Tx) error {
		row, err := getRequest(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err = check(row.request()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, "DELETE FROM bom_requests WHERE id = $1", id); err != nil {
			return errors.Wrap(err, "deleting BOM request")
		}
		return nil
	})
}
