// Package ledgertest provides an in-memory ledger.Store for service tests.
// Transactions take a coarse lock and snapshot state, so InTx is atomic and
// serialized exactly like the row-locked database transaction it stands in
// for.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velomarket/auction-service/internal/entity"
	"github.com/velomarket/auction-service/internal/repository/ledger"
)

// MemStore is an in-memory ledger.Store.
type MemStore struct {
	mu       sync.Mutex
	auctions map[int64]*entity.Auction
	bids     map[int64]*entity.Bid

	nextAuctionID int64
	nextBidID     int64

	// ConflictsBeforeCommit makes the next N InTx calls fail with
	// ledger.ErrConflict after running the closure, simulating a lost
	// serialization race.
	ConflictsBeforeCommit int
}

// New constructs an empty MemStore.
func New() *MemStore {
	return &MemStore{
		auctions: make(map[int64]*entity.Auction),
		bids:     make(map[int64]*entity.Bid),
	}
}

var _ ledger.Store = (*MemStore)(nil)

// SeedAuction inserts an auction directly, assigning an id when missing.
func (m *MemStore) SeedAuction(a *entity.Auction) *entity.Auction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		m.nextAuctionID++
		a.ID = m.nextAuctionID
	} else if a.ID > m.nextAuctionID {
		m.nextAuctionID = a.ID
	}
	cp := *a
	m.auctions[a.ID] = &cp
	return a
}

// SeedBid inserts a bid directly, assigning an id when missing.
func (m *MemStore) SeedBid(b *entity.Bid) *entity.Bid {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == 0 {
		m.nextBidID++
		b.ID = m.nextBidID
	} else if b.ID > m.nextBidID {
		m.nextBidID = b.ID
	}
	cp := *b
	m.bids[b.ID] = &cp
	return b
}

// AuctionSnapshot returns a copy of the stored auction row.
func (m *MemStore) AuctionSnapshot(id int64) (entity.Auction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok {
		return entity.Auction{}, false
	}
	return *a, true
}

// BidSnapshot returns a copy of the stored bid row.
func (m *MemStore) BidSnapshot(id int64) (entity.Bid, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[id]
	if !ok {
		return entity.Bid{}, false
	}
	return *b, true
}

// BidCount reports the number of stored bids.
func (m *MemStore) BidCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bids)
}

// InTx runs fn atomically: state is snapshotted first and restored when fn
// fails, so partial writes never survive.
func (m *MemStore) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	auctionsBackup := make(map[int64]*entity.Auction, len(m.auctions))
	for id, a := range m.auctions {
		cp := *a
		auctionsBackup[id] = &cp
	}
	bidsBackup := make(map[int64]*entity.Bid, len(m.bids))
	for id, b := range m.bids {
		cp := *b
		bidsBackup[id] = &cp
	}
	auctionIDBackup, bidIDBackup := m.nextAuctionID, m.nextBidID

	err := fn(ctx, txStore{m})
	if err == nil && m.ConflictsBeforeCommit > 0 {
		m.ConflictsBeforeCommit--
		err = ledger.ErrConflict
	}
	if err != nil {
		m.auctions = auctionsBackup
		m.bids = bidsBackup
		m.nextAuctionID, m.nextBidID = auctionIDBackup, bidIDBackup
		return err
	}
	return nil
}

// txStore exposes the unsynchronized operations inside a transaction.
type txStore struct{ m *MemStore }

func (t txStore) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Store) error) error {
	return fn(ctx, t)
}

func (t txStore) CreateAuction(ctx context.Context, a *entity.Auction) error {
	return t.m.createAuction(a)
}
func (t txStore) AuctionByID(ctx context.Context, id int64) (*entity.Auction, error) {
	return t.m.auctionByID(id)
}
func (t txStore) AuctionForUpdate(ctx context.Context, id int64) (*entity.Auction, error) {
	return t.m.auctionByID(id)
}
func (t txStore) UpdateAuction(ctx context.Context, a *entity.Auction, columns ...string) error {
	return t.m.updateAuction(a)
}
func (t txStore) SetCurrentHighest(ctx context.Context, auctionID int64, amount decimal.Decimal, bidderID int64) error {
	return t.m.setCurrentHighest(auctionID, amount, bidderID)
}
func (t txStore) InsertBid(ctx context.Context, b *entity.Bid) error {
	return t.m.insertBid(b)
}
func (t txStore) ActiveBids(ctx context.Context, auctionID int64) ([]entity.Bid, error) {
	return t.m.activeBids(auctionID), nil
}
func (t txStore) DemoteLeadingExcept(ctx context.Context, auctionID, keepBidID int64) error {
	return t.m.demoteLeadingExcept(auctionID, keepBidID)
}
func (t txStore) SetBidPlacement(ctx context.Context, bidID int64, amount decimal.Decimal, status entity.BidStatus) error {
	return t.m.setBidPlacement(bidID, amount, status)
}
func (t txStore) BidsByAuction(ctx context.Context, auctionID int64) ([]entity.Bid, error) {
	return t.m.bidsByAuction(auctionID), nil
}
func (t txStore) BidsByBidder(ctx context.Context, bidderID int64, offerStatus *entity.OfferStatus) ([]entity.Bid, error) {
	return t.m.bidsByBidder(bidderID, offerStatus), nil
}
func (t txStore) TopBidByOfferStatus(ctx context.Context, auctionID int64, status entity.OfferStatus) (*entity.Bid, error) {
	return t.m.topBidByOfferStatus(auctionID, status)
}
func (t txStore) TopBidsByOfferStatuses(ctx context.Context, auctionID int64, statuses []entity.OfferStatus, limit int) ([]entity.Bid, error) {
	return t.m.topBidsByOfferStatuses(auctionID, statuses, limit), nil
}
func (t txStore) SetOfferStatus(ctx context.Context, bidID int64, status entity.OfferStatus) error {
	return t.m.setOfferStatus(bidID, status)
}
func (t txStore) DistinctBidders(ctx context.Context, auctionID int64) ([]int64, error) {
	return t.m.distinctBidders(auctionID), nil
}

// Synchronized top-level operations.

func (m *MemStore) CreateAuction(ctx context.Context, a *entity.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createAuction(a)
}

func (m *MemStore) AuctionByID(ctx context.Context, id int64) (*entity.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auctionByID(id)
}

func (m *MemStore) AuctionForUpdate(ctx context.Context, id int64) (*entity.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auctionByID(id)
}

func (m *MemStore) UpdateAuction(ctx context.Context, a *entity.Auction, columns ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAuction(a)
}

func (m *MemStore) SetCurrentHighest(ctx context.Context, auctionID int64, amount decimal.Decimal, bidderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setCurrentHighest(auctionID, amount, bidderID)
}

func (m *MemStore) InsertBid(ctx context.Context, b *entity.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertBid(b)
}

func (m *MemStore) ActiveBids(ctx context.Context, auctionID int64) ([]entity.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeBids(auctionID), nil
}

func (m *MemStore) DemoteLeadingExcept(ctx context.Context, auctionID, keepBidID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.demoteLeadingExcept(auctionID, keepBidID)
}

func (m *MemStore) SetBidPlacement(ctx context.Context, bidID int64, amount decimal.Decimal, status entity.BidStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setBidPlacement(bidID, amount, status)
}

func (m *MemStore) BidsByAuction(ctx context.Context, auctionID int64) ([]entity.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bidsByAuction(auctionID), nil
}

func (m *MemStore) BidsByBidder(ctx context.Context, bidderID int64, offerStatus *entity.OfferStatus) ([]entity.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bidsByBidder(bidderID, offerStatus), nil
}

func (m *MemStore) TopBidByOfferStatus(ctx context.Context, auctionID int64, status entity.OfferStatus) (*entity.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topBidByOfferStatus(auctionID, status)
}

func (m *MemStore) TopBidsByOfferStatuses(ctx context.Context, auctionID int64, statuses []entity.OfferStatus, limit int) ([]entity.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topBidsByOfferStatuses(auctionID, statuses, limit), nil
}

func (m *MemStore) SetOfferStatus(ctx context.Context, bidID int64, status entity.OfferStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setOfferStatus(bidID, status)
}

func (m *MemStore) DistinctBidders(ctx context.Context, auctionID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.distinctBidders(auctionID), nil
}

// Unsynchronized implementations; callers hold mu.

func (m *MemStore) createAuction(a *entity.Auction) error {
	m.nextAuctionID++
	a.ID = m.nextAuctionID
	cp := *a
	m.auctions[a.ID] = &cp
	return nil
}

func (m *MemStore) auctionByID(id int64) (*entity.Auction, error) {
	a, ok := m.auctions[id]
	if !ok {
		return nil, ledger.ErrAuctionNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemStore) updateAuction(a *entity.Auction) error {
	if _, ok := m.auctions[a.ID]; !ok {
		return ledger.ErrAuctionNotFound
	}
	cp := *a
	m.auctions[a.ID] = &cp
	return nil
}

func (m *MemStore) setCurrentHighest(auctionID int64, amount decimal.Decimal, bidderID int64) error {
	a, ok := m.auctions[auctionID]
	if !ok {
		return ledger.ErrAuctionNotFound
	}
	a.CurrentHighestAmount = amount
	id := bidderID
	a.CurrentHighestBidderID = &id
	a.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) insertBid(b *entity.Bid) error {
	m.nextBidID++
	b.ID = m.nextBidID
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	cp := *b
	m.bids[b.ID] = &cp
	return nil
}

func (m *MemStore) activeBids(auctionID int64) []entity.Bid {
	var out []entity.Bid
	for _, b := range m.bids {
		if b.AuctionID == auctionID && b.Status != entity.BidCancelled {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemStore) demoteLeadingExcept(auctionID, keepBidID int64) error {
	for _, b := range m.bids {
		if b.AuctionID == auctionID && b.ID != keepBidID && b.Status == entity.BidLeading {
			b.Status = entity.BidOutbid
			b.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (m *MemStore) setBidPlacement(bidID int64, amount decimal.Decimal, status entity.BidStatus) error {
	b, ok := m.bids[bidID]
	if !ok {
		return ledger.ErrBidNotFound
	}
	b.CurrentPlacedAmount = amount
	b.Status = status
	b.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) bidsByAuction(auctionID int64) []entity.Bid {
	var out []entity.Bid
	for _, b := range m.bids {
		if b.AuctionID == auctionID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CurrentPlacedAmount.Equal(out[j].CurrentPlacedAmount) {
			return out[i].CurrentPlacedAmount.GreaterThan(out[j].CurrentPlacedAmount)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemStore) bidsByBidder(bidderID int64, offerStatus *entity.OfferStatus) []entity.Bid {
	var out []entity.Bid
	for _, b := range m.bids {
		if b.BidderID != bidderID {
			continue
		}
		if offerStatus != nil && b.OfferStatus != *offerStatus {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *MemStore) topBidByOfferStatus(auctionID int64, status entity.OfferStatus) (*entity.Bid, error) {
	var top *entity.Bid
	for _, b := range m.bids {
		if b.AuctionID != auctionID || b.OfferStatus != status {
			continue
		}
		if top == nil || b.CurrentPlacedAmount.GreaterThan(top.CurrentPlacedAmount) {
			cp := *b
			top = &cp
		}
	}
	if top == nil {
		return nil, ledger.ErrBidNotFound
	}
	return top, nil
}

func (m *MemStore) topBidsByOfferStatuses(auctionID int64, statuses []entity.OfferStatus, limit int) []entity.Bid {
	allowed := make(map[entity.OfferStatus]struct{}, len(statuses))
	for _, s := range statuses {
		allowed[s] = struct{}{}
	}
	var out []entity.Bid
	for _, b := range m.bids {
		if b.AuctionID != auctionID {
			continue
		}
		if _, ok := allowed[b.OfferStatus]; !ok {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CurrentPlacedAmount.Equal(out[j].CurrentPlacedAmount) {
			return out[i].CurrentPlacedAmount.GreaterThan(out[j].CurrentPlacedAmount)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemStore) setOfferStatus(bidID int64, status entity.OfferStatus) error {
	b, ok := m.bids[bidID]
	if !ok {
		return ledger.ErrBidNotFound
	}
	b.OfferStatus = status
	b.UpdatedAt = time.Now()
	return nil
}

func (m *MemStore) distinctBidders(auctionID int64) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, b := range m.bids {
		if b.AuctionID != auctionID {
			continue
		}
		if _, ok := seen[b.BidderID]; ok {
			continue
		}
		seen[b.BidderID] = struct{}{}
		out = append(out, b.BidderID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
