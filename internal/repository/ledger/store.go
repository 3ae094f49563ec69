package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/velomarket/auction-service/internal/entity"
)

// Errors shared by the store contract.
var (
	// ErrAuctionNotFound is returned when the auction is missing.
	ErrAuctionNotFound = errors.New("auction not found")
	// ErrBidNotFound is returned when no bid matches a settlement query.
	ErrBidNotFound = errors.New("bid not found")
	// ErrConflict signals the transaction lost a serialization race and may
	// be retried with a fresh read.
	ErrConflict = errors.New("ledger write conflict")
)

// Store is the persistence contract for the auction + bid consistency unit.
// Auctions and their bids live behind one interface because bid placement
// must read and write both atomically; InTx yields a Store bound to a single
// transaction, and AuctionForUpdate locks the auction row inside it so that
// placements on the same auction serialize while other auctions proceed in
// parallel.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	CreateAuction(ctx context.Context, auction *entity.Auction) error
	AuctionByID(ctx context.Context, id int64) (*entity.Auction, error)
	AuctionForUpdate(ctx context.Context, id int64) (*entity.Auction, error)
	UpdateAuction(ctx context.Context, auction *entity.Auction, columns ...string) error
	SetCurrentHighest(ctx context.Context, auctionID int64, amount decimal.Decimal, bidderID int64) error

	InsertBid(ctx context.Context, bid *entity.Bid) error
	ActiveBids(ctx context.Context, auctionID int64) ([]entity.Bid, error)
	DemoteLeadingExcept(ctx context.Context, auctionID, keepBidID int64) error
	SetBidPlacement(ctx context.Context, bidID int64, amount decimal.Decimal, status entity.BidStatus) error

	BidsByAuction(ctx context.Context, auctionID int64) ([]entity.Bid, error)
	BidsByBidder(ctx context.Context, bidderID int64, offerStatus *entity.OfferStatus) ([]entity.Bid, error)
	TopBidByOfferStatus(ctx context.Context, auctionID int64, status entity.OfferStatus) (*entity.Bid, error)
	TopBidsByOfferStatuses(ctx context.Context, auctionID int64, statuses []entity.OfferStatus, limit int) ([]entity.Bid, error)
	SetOfferStatus(ctx context.Context, bidID int64, status entity.OfferStatus) error
	DistinctBidders(ctx context.Context, auctionID int64) ([]int64, error)
}
