package floor

import (
	"context"
	"time"

	"github.com/iliyamo/casino-floor/internal/model"
	"github.com/iliyamo/casino-floor/internal/repository"
)

// Source reads the authoritative floor state of a casino.
type Source interface {
	Tables(ctx context.Context, casinoID string) ([]model.GamingTable, error)
	OpenSlips(ctx context.Context, casinoID string) ([]model.RatingSlip, error)
}

// StoreSource reads from the store. Each read gets its own timeout.
type StoreSource struct {
	Store   *repository.Store
	Timeout time.Duration
}

// NewStoreSource returns a Source over store.
func NewStoreSource(store *repository.Store, timeout time.Duration) *StoreSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StoreSource{Store: store, Timeout: timeout}
}

// Tables returns the casino's tables with their active settings.
func (s *StoreSource) Tables(ctx context.Context, casinoID string) ([]model.GamingTable, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	tables, err := s.Store.Tables.ListByCasino(ctx, casinoID)
	return tables, repository.Unavailable(err)
}

// OpenSlips returns the open slips at the casino's tables.
func (s *StoreSource) OpenSlips(ctx context.Context, casinoID string) ([]model.RatingSlip, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	slips, err := s.Store.Slips.ListOpenByCasino(ctx, casinoID)
	return slips, repository.Unavailable(err)
}
