package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/uyenet/membership-backend/v1/database"
)

// ProbeResult is the structured outcome of a connectivity probe
type ProbeResult struct {
	LocalAvailable bool   `json:"localAvailable"`
	SheetAvailable bool   `json:"sheetAvailable"`
	Error          string `json:"error,omitempty"`
}

// ConnectionHealthProbe performs cheap readiness checks on the local store
// and the external roster before a sync run starts
type ConnectionHealthProbe struct {
	repo   database.MemberRepository
	roster RosterClient
}

// NewConnectionHealthProbe creates a new probe
func NewConnectionHealthProbe(repo database.MemberRepository, roster RosterClient) *ConnectionHealthProbe {
	return &ConnectionHealthProbe{repo: repo, roster: roster}
}

// Probe checks both sides and always returns a structured result.
// A roster configured in offline mode reports SheetAvailable=false without
// recording an error.
func (p *ConnectionHealthProbe) Probe(ctx context.Context) ProbeResult {
	result := ProbeResult{}

	if _, err := p.repo.Count(ctx); err != nil {
		result.Error = "local store unavailable: " + err.Error()
		slog.Error("Local store probe failed", "error", err)
		return result
	}
	result.LocalAvailable = true

	if err := p.roster.Ping(ctx); err != nil {
		if errors.Is(err, ErrRosterOffline) {
			slog.Info("Roster is in offline mode, sheet marked unavailable")
			return result
		}
		result.Error = "roster unavailable: " + err.Error()
		slog.Warn("Roster probe failed", "error", err)
		return result
	}
	result.SheetAvailable = true

	return result
}
