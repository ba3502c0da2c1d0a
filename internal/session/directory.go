package session

import (
	"context"
	"strings"

	"github.com/iliyamo/casino-floor/internal/model"
	"github.com/iliyamo/casino-floor/internal/repository"
)

// PlayerSearchLimit caps the players returned by SearchPlayers.
const PlayerSearchLimit = 10

// SearchPlayers finds players to seat by a fragment of their name, email
// or phone number. Players already rated somewhere come back with their
// open slip id so the pit can move them instead.
func (m *Manager) SearchPlayers(ctx context.Context, term string) ([]model.PlayerSearchResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, repository.Validation("q is required")
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	players, err := m.store.Players.Search(ctx, term, PlayerSearchLimit)
	if err != nil {
		return nil, m.fail("search players", err)
	}
	return players, nil
}

// ListCasinos returns the casinos staff can switch between. A scoped
// context only sees its own casino.
func (m *Manager) ListCasinos(ctx context.Context) ([]model.Casino, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if pinned, ok := CasinoScope(ctx); ok {
		c, err := m.store.Casinos.GetByID(ctx, pinned)
		if err != nil {
			return nil, m.fail("list casinos", err)
		}
		return []model.Casino{*c}, nil
	}
	casinos, err := m.store.Casinos.List(ctx)
	if err != nil {
		return nil, m.fail("list casinos", err)
	}
	if casinos == nil {
		casinos = []model.Casino{}
	}
	return casinos, nil
}
