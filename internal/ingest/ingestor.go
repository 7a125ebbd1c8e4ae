package ingest

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chainpulse/wallet-tracker/internal/metrics"
	"github.com/chainpulse/wallet-tracker/internal/models"
	"github.com/chainpulse/wallet-tracker/internal/provider"
	"github.com/chainpulse/wallet-tracker/internal/storage"
	"github.com/chainpulse/wallet-tracker/pkg/utils"
)

// SwapFetcher retrieves swap rows from the provider under a given credential
type SwapFetcher interface {
	FetchSwaps(ctx context.Context, apiKey, wallet, chain, order string) ([]provider.RawSwap, error)
}

// Rotator serves credentials and rotates on exhaustion
type Rotator interface {
	Current(ctx context.Context) (key string, index int, err error)
	AdvanceIfStillAt(ctx context.Context, observed int) (int, error)
}

// TransactionStore persists deduplicated swaps
type TransactionStore interface {
	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransactionsByWallet(ctx context.Context, address, chain string, limit int) ([]*models.Transaction, error)
}

// Sink receives events for swaps persisted for the first time
type Sink interface {
	PublishTransaction(ctx context.Context, event *models.TransactionEvent)
	AlertOperator(ctx context.Context, message string)
}

// Config holds ingestor configuration
type Config struct {
	// Window bounds how far back fetched swaps are accepted
	Window time.Duration
	// RecentLimit is how many stored rows are loaded to seed the dedup set
	RecentLimit int
}

// Ingestor pulls fresh swaps for one wallet-chain pair per call: fetch under
// the current credential, filter to the recency window, drop rows already
// recorded, persist the rest, and emit an event per new row.
type Ingestor struct {
	config  *Config
	fetcher SwapFetcher
	rotator Rotator
	store   TransactionStore
	sink    Sink
	metrics *metrics.Metrics
	logger  *logrus.Logger
	now     func() time.Time
}

// NewIngestor creates an ingestor
func NewIngestor(config *Config, fetcher SwapFetcher, rotator Rotator, store TransactionStore, sink Sink, m *metrics.Metrics) *Ingestor {
	if config.Window <= 0 {
		config.Window = 24 * time.Hour
	}
	if config.RecentLimit <= 0 {
		config.RecentLimit = 200
	}

	return &Ingestor{
		config:  config,
		fetcher: fetcher,
		rotator: rotator,
		store:   store,
		sink:    sink,
		metrics: m,
		logger:  utils.GetLogger(),
		now:     time.Now,
	}
}

// Ingest runs one fetch-filter-persist pass for a wallet on a chain. A
// credential found spent mid-fetch is rotated and the fetch retried once;
// when the retry is also spent the pass is skipped until the next sweep, so
// one starved pool cannot crash the fleet loop.
func (i *Ingestor) Ingest(ctx context.Context, wallet *models.TrackedWallet, chain string) error {
	start := time.Now()

	swaps, err := i.fetchWithRotation(ctx, wallet.Wallet, chain)
	if err != nil {
		if errors.Is(err, provider.ErrCredentialExhausted) {
			i.logger.WithFields(logrus.Fields{
				"wallet": wallet.Wallet,
				"chain":  chain,
			}).Warn("Credential exhausted after rotation, skipping pass")
			i.sink.AlertOperator(ctx, "Swap ingestion skipped: credential exhausted immediately after rotation")
			if i.metrics != nil {
				i.metrics.IngestErrors.WithLabelValues("exhausted").Inc()
			}
			return nil
		}
		if i.metrics != nil {
			i.metrics.IngestErrors.WithLabelValues("fetch").Inc()
		}
		return err
	}

	fresh := i.filterRecent(swaps)

	seen, err := i.loadSeen(ctx, wallet.Wallet, chain)
	if err != nil {
		if i.metrics != nil {
			i.metrics.IngestErrors.WithLabelValues("load").Inc()
		}
		return err
	}

	var saved, duplicates int
	for idx := range fresh {
		swap := &fresh[idx]
		key := models.TransactionKey(swap.TransactionHash, swap.TransactionIndex)
		if seen[key] {
			continue
		}
		seen[key] = true

		tx, err := buildTransaction(wallet.Wallet, chain, swap)
		if err != nil {
			i.logger.WithError(err).WithField("txHash", swap.TransactionHash).Warn("Skipping malformed swap")
			continue
		}

		if err := i.store.SaveTransaction(ctx, tx); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				// another pass won the insert race, nothing to do
				duplicates++
				i.logger.WithField("key", key).Debug("Swap already recorded")
				continue
			}
			if i.metrics != nil {
				i.metrics.IngestErrors.WithLabelValues("save").Inc()
			}
			return err
		}

		saved++
		i.sink.PublishTransaction(ctx, models.NewTransactionEvent(wallet, tx))
	}

	if i.metrics != nil {
		i.metrics.ObserveIngest(chain, len(swaps), saved, duplicates, time.Since(start))
	}

	if saved > 0 {
		i.logger.WithFields(logrus.Fields{
			"wallet": wallet.Wallet,
			"chain":  chain,
			"saved":  saved,
		}).Info("Recorded new swaps")
	}

	return nil
}

// fetchWithRotation fetches swaps under the current credential, rotating and
// retrying once when the credential is reported spent.
func (i *Ingestor) fetchWithRotation(ctx context.Context, wallet, chain string) ([]provider.RawSwap, error) {
	key, index, err := i.rotator.Current(ctx)
	if err != nil {
		return nil, err
	}

	swaps, err := i.fetcher.FetchSwaps(ctx, key, wallet, chain, "DESC")
	if err == nil {
		return swaps, nil
	}
	if !errors.Is(err, provider.ErrCredentialExhausted) {
		return nil, err
	}

	if _, err := i.rotator.AdvanceIfStillAt(ctx, index); err != nil {
		return nil, err
	}

	key, _, err = i.rotator.Current(ctx)
	if err != nil {
		return nil, err
	}

	return i.fetcher.FetchSwaps(ctx, key, wallet, chain, "DESC")
}

// filterRecent keeps swaps whose block timestamp falls inside the window,
// cutoff included. Rows with unparseable timestamps are dropped.
func (i *Ingestor) filterRecent(swaps []provider.RawSwap) []provider.RawSwap {
	cutoff := i.now().Add(-i.config.Window)

	fresh := make([]provider.RawSwap, 0, len(swaps))
	for _, swap := range swaps {
		ts, err := time.Parse(time.RFC3339, swap.BlockTimestamp)
		if err != nil {
			i.logger.WithFields(logrus.Fields{
				"txHash":    swap.TransactionHash,
				"timestamp": swap.BlockTimestamp,
			}).Debug("Dropping swap with unparseable timestamp")
			continue
		}
		if !ts.Before(cutoff) {
			fresh = append(fresh, swap)
		}
	}
	return fresh
}

// loadSeen builds the dedup set from recently stored rows
func (i *Ingestor) loadSeen(ctx context.Context, wallet, chain string) (map[string]bool, error) {
	stored, err := i.store.GetTransactionsByWallet(ctx, wallet, chain, i.config.RecentLimit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(stored))
	for _, tx := range stored {
		seen[tx.DedupKey()] = true
	}
	return seen, nil
}

// buildTransaction maps a provider swap row onto the stored record
func buildTransaction(wallet, chain string, swap *provider.RawSwap) (*models.Transaction, error) {
	id, err := utils.GenerateID()
	if err != nil {
		return nil, err
	}

	return &models.Transaction{
		ID:                id,
		Wallet:            wallet,
		Chain:             chain,
		Type:              swap.TransactionType,
		TxHash:            swap.TransactionHash,
		TxIndex:           swap.TransactionIndex,
		BlockTimestamp:    swap.BlockTimestamp,
		TokenOutSymbol:    swap.Sold.Symbol,
		TokenOutName:      swap.Sold.Name,
		TokenOutLogo:      swap.Sold.Logo,
		TokenOutAddress:   swap.Sold.Address,
		TokenOutAmount:    swap.Sold.Amount,
		TokenOutAmountUsd: formatUsd(swap.Sold.UsdAmount),
		TokenInSymbol:     swap.Bought.Symbol,
		TokenInName:       swap.Bought.Name,
		TokenInLogo:       swap.Bought.Logo,
		TokenInAddress:    swap.Bought.Address,
		TokenInAmount:     swap.Bought.Amount,
		TokenInAmountUsd:  formatUsd(swap.Bought.UsdAmount),
		CreatedAt:         time.Now().UTC(),
	}, nil
}

func formatUsd(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
