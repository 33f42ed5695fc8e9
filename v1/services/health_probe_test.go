package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/uyenet/membership-backend/v1/database"
)

func TestConnectionHealthProbe_BothAvailable(t *testing.T) {
	db := SetupSQLiteTestDB(t)
	repo := database.NewGormMemberRepository(db)
	probe := NewConnectionHealthProbe(repo, &fakeRoster{})

	result := probe.Probe(context.Background())

	assert.True(t, result.LocalAvailable)
	assert.True(t, result.SheetAvailable)
	assert.Empty(t, result.Error)
}

func TestConnectionHealthProbe_LocalDown(t *testing.T) {
	db := SetupSQLiteTestDB(t)
	repo := &failingCountRepo{
		MemberRepository: database.NewGormMemberRepository(db),
		countErr:         errors.New("connection refused"),
	}
	probe := NewConnectionHealthProbe(repo, &fakeRoster{})

	result := probe.Probe(context.Background())

	assert.False(t, result.LocalAvailable)
	assert.False(t, result.SheetAvailable)
	assert.Contains(t, result.Error, "local store unavailable")
}

func TestConnectionHealthProbe_SheetDown(t *testing.T) {
	db := SetupSQLiteTestDB(t)
	repo := database.NewGormMemberRepository(db)
	probe := NewConnectionHealthProbe(repo, &fakeRoster{pingErr: errors.New("timeout")})

	result := probe.Probe(context.Background())

	assert.True(t, result.LocalAvailable)
	assert.False(t, result.SheetAvailable)
	assert.Contains(t, result.Error, "roster unavailable")
}

func TestConnectionHealthProbe_OfflineRosterIsNotAnError(t *testing.T) {
	db := SetupSQLiteTestDB(t)
	repo := database.NewGormMemberRepository(db)
	probe := NewConnectionHealthProbe(repo, NewOfflineRosterClient())

	result := probe.Probe(context.Background())

	assert.True(t, result.LocalAvailable)
	assert.False(t, result.SheetAvailable)
	assert.Empty(t, result.Error)
}
