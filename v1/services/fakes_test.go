package services

import (
	"context"

	"github.com/uyenet/membership-backend/v1/database"
)

// fakeRoster is an in-memory RosterClient with injectable failures
type fakeRoster struct {
	rows [][]string

	pingErr   error
	readErr   error
	appendErr error

	readCalls int
	appended  [][]string
}

func (f *fakeRoster) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeRoster) ReadAll(ctx context.Context) ([][]string, error) {
	f.readCalls++
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.rows, nil
}

func (f *fakeRoster) Append(ctx context.Context, row []string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, row)
	return nil
}

func (f *fakeRoster) Update(ctx context.Context, rowIndex int, row []string) error {
	return nil
}

// failingCountRepo wraps a repository and fails Count, simulating a local
// store outage during the connectivity probe
type failingCountRepo struct {
	database.MemberRepository
	countErr error
}

func (r *failingCountRepo) Count(ctx context.Context) (int64, error) {
	return 0, r.countErr
}
