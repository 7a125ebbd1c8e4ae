package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chainpulse/wallet-tracker/internal/models"
	"github.com/chainpulse/wallet-tracker/internal/provider"
	"github.com/chainpulse/wallet-tracker/internal/storage"
)

// fakeFetcher returns a scripted sequence of fetch results
type fakeFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
	keys    []string
}

type fetchResult struct {
	swaps []provider.RawSwap
	err   error
}

func (f *fakeFetcher) FetchSwaps(ctx context.Context, apiKey, wallet, chain, order string) ([]provider.RawSwap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.keys = append(f.keys, apiKey)
	result := f.results[f.calls]
	if f.calls < len(f.results)-1 {
		f.calls++
	}
	return result.swaps, result.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

// fakeRotator is a minimal in-memory credential pool
type fakeRotator struct {
	mu       sync.Mutex
	keys     []string
	cursor   int
	advances int
}

func (r *fakeRotator) Current(ctx context.Context) (string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keys[r.cursor], r.cursor, nil
}

func (r *fakeRotator) AdvanceIfStillAt(ctx context.Context, observed int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor == observed {
		r.cursor = (r.cursor + 1) % len(r.keys)
		r.advances++
	}
	return r.cursor, nil
}

// fakeStore records saved transactions and simulates the dedup index
type fakeStore struct {
	mu      sync.Mutex
	stored  []*models.Transaction
	saveErr error
}

func (s *fakeStore) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	for _, existing := range s.stored {
		if existing.DedupKey() == tx.DedupKey() {
			return storage.ErrDuplicateKey
		}
	}
	s.stored = append(s.stored, tx)
	return nil
}

func (s *fakeStore) GetTransactionsByWallet(ctx context.Context, address, chain string, limit int) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Transaction
	for _, tx := range s.stored {
		if tx.Wallet == address && (chain == "" || tx.Chain == chain) {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

// fakeSink records published events and operator alerts
type fakeSink struct {
	mu     sync.Mutex
	events []*models.TransactionEvent
	alerts []string
}

func (s *fakeSink) PublishTransaction(ctx context.Context, event *models.TransactionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *fakeSink) AlertOperator(ctx context.Context, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, message)
}

func rawSwap(hash string, index int, age time.Duration) provider.RawSwap {
	return provider.RawSwap{
		TransactionHash:  hash,
		TransactionIndex: index,
		TransactionType:  "buy",
		BlockTimestamp:   time.Now().Add(-age).UTC().Format(time.RFC3339),
		Sold:             provider.SwapLeg{Address: "0x1", Symbol: "WETH", Amount: "1", UsdAmount: 3000},
		Bought:           provider.SwapLeg{Address: "0x2", Symbol: "PEPE", Amount: "100", UsdAmount: 2990},
	}
}

func testSetup(results ...fetchResult) (*Ingestor, *fakeFetcher, *fakeRotator, *fakeStore, *fakeSink) {
	fetcher := &fakeFetcher{results: results}
	rotator := &fakeRotator{keys: []string{"key-a", "key-b"}}
	store := &fakeStore{}
	sink := &fakeSink{}

	ingestor := NewIngestor(&Config{Window: 24 * time.Hour}, fetcher, rotator, store, sink, nil)
	return ingestor, fetcher, rotator, store, sink
}

func trackedWallet() *models.TrackedWallet {
	return &models.TrackedWallet{
		Name:   "Whale",
		Wallet: "0xwallet",
		Chains: []string{"eth"},
	}
}

func TestIngestPersistsAndPublishes(t *testing.T) {
	ingestor, _, _, store, sink := testSetup(fetchResult{
		swaps: []provider.RawSwap{
			rawSwap("0xaaa", 0, time.Hour),
			rawSwap("0xbbb", 1, 2*time.Hour),
		},
	})

	if err := ingestor.Ingest(context.Background(), trackedWallet(), "eth"); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if store.count() != 2 {
		t.Errorf("Expected 2 stored transactions, got %d", store.count())
	}
	if len(sink.events) != 2 {
		t.Fatalf("Expected 2 published events, got %d", len(sink.events))
	}

	event := sink.events[0]
	if event.Msg != "New Transaction" {
		t.Errorf("Unexpected event message %q", event.Msg)
	}
	if event.Content.Name != "Whale" {
		t.Errorf("Expected wallet profile merged into event, got %+v", event.Content)
	}
	if event.Content.Chain != "eth" || event.Content.Wallet != "0xwallet" {
		t.Errorf("Event content missing identity fields: %+v", event.Content)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	swaps := []provider.RawSwap{rawSwap("0xaaa", 0, time.Hour)}
	ingestor, _, _, store, sink := testSetup(fetchResult{swaps: swaps})

	for i := 0; i < 3; i++ {
		if err := ingestor.Ingest(context.Background(), trackedWallet(), "eth"); err != nil {
			t.Fatalf("Ingest pass %d failed: %v", i, err)
		}
	}

	if store.count() != 1 {
		t.Errorf("Expected 1 stored transaction after repeats, got %d", store.count())
	}
	if len(sink.events) != 1 {
		t.Errorf("Expected 1 published event after repeats, got %d", len(sink.events))
	}
}

func TestIngestFiltersOldSwaps(t *testing.T) {
	ingestor, _, _, store, _ := testSetup(fetchResult{
		swaps: []provider.RawSwap{
			rawSwap("0xfresh", 0, time.Hour),
			rawSwap("0xstale", 1, 25*time.Hour),
		},
	})

	if err := ingestor.Ingest(context.Background(), trackedWallet(), "eth"); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if store.count() != 1 {
		t.Fatalf("Expected only the fresh swap stored, got %d", store.count())
	}
	if store.stored[0].TxHash != "0xfresh" {
		t.Errorf("Wrong swap kept: %s", store.stored[0].TxHash)
	}
}

func TestIngestKeepsSwapAtWindowBoundary(t *testing.T) {
	now := time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC)

	boundary := rawSwap("0xedge", 0, 0)
	boundary.BlockTimestamp = now.Add(-24 * time.Hour).Format(time.RFC3339)
	beyond := rawSwap("0xgone", 1, 0)
	beyond.BlockTimestamp = now.Add(-24*time.Hour - time.Second).Format(time.RFC3339)

	ingestor, _, _, store, _ := testSetup(fetchResult{
		swaps: []provider.RawSwap{boundary, beyond},
	})
	ingestor.now = func() time.Time { return now }

	if err := ingestor.Ingest(context.Background(), trackedWallet(), "eth"); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	// The cutoff itself is inside the window; one second older is not
	if store.count() != 1 {
		t.Fatalf("Expected only the boundary swap stored, got %d", store.count())
	}
	if store.stored[0].TxHash != "0xedge" {
		t.Errorf("Wrong swap kept: %s", store.stored[0].TxHash)
	}
}

func TestIngestDropsUnparseableTimestamps(t *testing.T) {
	bad := rawSwap("0xbad", 0, time.Hour)
	bad.BlockTimestamp = "not-a-timestamp"

	ingestor, _, _, store, _ := testSetup(fetchResult{
		swaps: []provider.RawSwap{bad, rawSwap("0xgood", 1, time.Hour)},
	})

	if err := ingestor.Ingest(context.Background(), trackedWallet(), "eth"); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if store.count() != 1 || store.stored[0].TxHash != "0xgood" {
		t.Errorf("Expected only the well-formed swap stored")
	}
}

func TestIngestRotatesOnceOnExhaustion(t *testing.T) {
	ingestor, fetcher, rotator, store, _ := testSetup(
		fetchResult{err: provider.ErrCredentialExhausted},
		fetchResult{swaps: []provider.RawSwap{rawSwap("0xaaa", 0, time.Hour)}},
	)

	if err := ingestor.Ingest(context.Background(), trackedWallet(), "eth"); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if fetcher.callCount() != 2 {
		t.Errorf("Expected exactly 2 fetches, got %d", fetcher.callCount())
	}
	if fetcher.keys[0] != "key-a" || fetcher.keys[1] != "key-b" {
		t.Errorf("Expected retry under rotated key, got %v", fetcher.keys)
	}
	if rotator.advances != 1 {
		t.Errorf("Expected 1 rotation, got %d", rotator.advances)
	}
	if store.count() != 1 {
		t.Errorf("Expected swap stored after retry, got %d", store.count())
	}
}

func TestIngestSoftFailsWhenPoolSpent(t *testing.T) {
	ingestor, fetcher, _, store, sink := testSetup(
		fetchResult{err: provider.ErrCredentialExhausted},
		fetchResult{err: provider.ErrCredentialExhausted},
	)

	// A starved pool must not propagate as a failure, the sweep carries on
	if err := ingestor.Ingest(context.Background(), trackedWallet(), "eth"); err != nil {
		t.Fatalf("Expected soft failure, got %v", err)
	}

	if fetcher.callCount() != 2 {
		t.Errorf("Expected exactly 2 fetches (one retry), got %d", fetcher.callCount())
	}
	if store.count() != 0 {
		t.Errorf("Expected nothing stored, got %d", store.count())
	}
	if len(sink.alerts) != 1 {
		t.Errorf("Expected 1 operator alert, got %d", len(sink.alerts))
	}
}

func TestIngestAbortsOnStorageError(t *testing.T) {
	ingestor, _, _, store, sink := testSetup(fetchResult{
		swaps: []provider.RawSwap{rawSwap("0xaaa", 0, time.Hour)},
	})

	boom := errors.New("disk full")
	store.saveErr = boom

	err := ingestor.Ingest(context.Background(), trackedWallet(), "eth")
	if !errors.Is(err, boom) {
		t.Fatalf("Expected storage error to propagate, got %v", err)
	}
	if len(sink.events) != 0 {
		t.Errorf("No events should publish for failed saves, got %d", len(sink.events))
	}
}

func TestIngestTreatsDuplicateAsBenign(t *testing.T) {
	swap := rawSwap("0xaaa", 0, time.Hour)

	fetcher := &fakeFetcher{results: []fetchResult{{swaps: []provider.RawSwap{swap}}}}
	rotator := &fakeRotator{keys: []string{"key-a"}}
	store := &fakeStore{}
	sink := &fakeSink{}
	ingestor := NewIngestor(&Config{Window: 24 * time.Hour}, fetcher, rotator, store, sink, nil)

	// Seed the row under a different wallet so the dedup set misses it but the
	// unique index still fires, as when two wallets share one transaction.
	seeded, err := buildTransaction("0xother", "eth", &swap)
	if err != nil {
		t.Fatalf("buildTransaction failed: %v", err)
	}
	if err := store.SaveTransaction(context.Background(), seeded); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	if err := ingestor.Ingest(context.Background(), trackedWallet(), "eth"); err != nil {
		t.Fatalf("Duplicate insert must be benign, got %v", err)
	}
	if store.count() != 1 {
		t.Errorf("Expected only seeded row, got %d", store.count())
	}
	if len(sink.events) != 0 {
		t.Errorf("Duplicate row must not publish an event, got %d", len(sink.events))
	}
}
