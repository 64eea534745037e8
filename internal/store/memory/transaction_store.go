package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

type txKey struct {
	wallet, txHash, orderHash, tokenID string
}

// TransactionStore is an in-memory implementation of domain.TransactionStore.
type TransactionStore struct {
	mu   sync.RWMutex
	keys map[txKey]struct{}
	log  []domain.Transaction // insertion order
}

// NewTransactionStore creates an empty transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{keys: make(map[txKey]struct{})}
}

var _ domain.TransactionStore = (*TransactionStore)(nil)

// InsertBatch appends transactions not already recorded.
func (s *TransactionStore) InsertBatch(_ context.Context, txs []domain.Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted int64
	for _, tx := range txs {
		tx.WalletAddress = domain.NormalizeWallet(tx.WalletAddress)
		k := txKey{tx.WalletAddress, tx.TxHash, tx.OrderHash, tx.TokenID}
		if _, dup := s.keys[k]; dup {
			continue
		}
		s.keys[k] = struct{}{}
		s.log = append(s.log, tx)
		inserted++
	}
	return inserted, nil
}

func (s *TransactionStore) filter(keep func(domain.Transaction) bool) []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Transaction, 0)
	for _, tx := range s.log {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// ListByWallet returns the wallet's transactions oldest first.
func (s *TransactionStore) ListByWallet(_ context.Context, wallet string) ([]domain.Transaction, error) {
	wallet = domain.NormalizeWallet(wallet)
	return s.filter(func(tx domain.Transaction) bool { return tx.WalletAddress == wallet }), nil
}

// ListByWalletMarket returns the wallet's transactions in one market.
func (s *TransactionStore) ListByWalletMarket(_ context.Context, wallet, marketSlug string) ([]domain.Transaction, error) {
	wallet = domain.NormalizeWallet(wallet)
	return s.filter(func(tx domain.Transaction) bool {
		return tx.WalletAddress == wallet && tx.MarketSlug == marketSlug
	}), nil
}

// ListWallets returns distinct wallets in ascending order.
func (s *TransactionStore) ListWallets(_ context.Context, opts domain.ListOpts) ([]string, error) {
	s.mu.RLock()
	set := make(map[string]struct{})
	for _, tx := range s.log {
		set[tx.WalletAddress] = struct{}{}
	}
	s.mu.RUnlock()
	return paginate(sortedKeys(set), opts.Offset, opts.Limit), nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
