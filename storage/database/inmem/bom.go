package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/labportal/core/bom"
)

type bomRepository struct {
	db *bomTable
}

var _ bom.Repository = (*bomRepository)(nil) // interface compliance check

func NewBOMRepository(db *DB) bom.Repository {
	return &bomRepository{db: db.bom}
}

// copyRequest detaches the edit history so callers never share it with the table.
func copyRequest(r bom.Request) bom.Request {
	if r.EditHistory != nil {
		history := make(bom.EditHistory, len(r.EditHistory))
		for i, entry := range r.EditHistory {
			entry.Changes = append([]bom.FieldChange(nil), entry.Changes...)
			history[i] = entry
		}
		r.EditHistory = history
	}
	return r
}

func (repo *bomRepository) CreateRequest(_ context.Context, r bom.Request) (bom.Request, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	r.ID = uuid.New().String()
	stored := copyRequest(r)
	repo.db.table[r.ID] = &stored
	return r, nil
}

func (repo *bomRepository) GetRequest(_ context.Context, id string) (bom.Request, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.db.table[id]; ok {
		return copyRequest(*r), nil
	}
	return bom.Request{}, bom.ErrNotFound
}

func (repo *bomRepository) QueryRequests(_ context.Context, filter bom.QueryFilter) ([]bom.Request, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var stages map[bom.Stage]bool
	if len(filter.Stages) > 0 {
		stages = make(map[bom.Stage]bool, len(filter.Stages))
		for _, s := range filter.Stages {
			stages[s] = true
		}
	}

	requests := make([]bom.Request, 0)
	for _, r := range repo.db.table {
		if filter.StudentID != "" || filter.TeamID != "" {
			ownMatch := filter.StudentID != "" && r.StudentID == filter.StudentID
			teamMatch := filter.TeamID != "" && r.TeamID == filter.TeamID
			if !ownMatch && !teamMatch {
				continue
			}
		}
		if filter.GuideID != "" && r.GuideID != filter.GuideID {
			continue
		}
		if stages != nil && !stages[r.Stage] {
			continue
		}
		requests = append(requests, copyRequest(*r))
	}

	sort.SliceStable(requests, func(i, j int) bool {
		if requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].ID > requests[j].ID
		}
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
	return requests, nil
}

// UpdateRequest holds the table lock for the whole read-modify-write.
func (repo *bomRepository) UpdateRequest(_ context.Context, id string, fn bom.Mutation) (bom.Request, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.table[id]
	if !ok {
		return bom.Request{}, bom.ErrNotFound
	}

	r := copyRequest(*stored)
	changed, err := fn(&r)
	if err != nil {
		return bom.Request{}, err
	}
	if !changed {
		return copyRequest(*stored), nil
	}

	r.ID = stored.ID
	updated := copyRequest(r)
	repo.db.table[id] = &updated
	return r, nil
}

func (repo *bomRepository) DeleteRequest(_ context.Context, id string, check func(r bom.Request) error) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.table[id]
	if !ok {
		return bom.ErrNotFound
	}
	if err := check(copyRequest(*stored)); err != nil {
		return err
	}
	delete(repo.db.table, id)
	return nil
}
