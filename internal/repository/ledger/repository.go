package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/velomarket/auction-service/internal/database"
	"github.com/velomarket/auction-service/internal/entity"
)

var repoTracer = otel.Tracer("github.com/velomarket/auction-service/repository/ledger")

// Repository is the bun-backed Store implementation. Reads that tolerate
// replica lag go to the reader; everything inside a placement transaction
// uses the writer.
type Repository struct {
	db    *bun.DB
	write bun.IDB
	read  bun.IDB
	inTx  bool
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		db:    conns.Writer,
		write: conns.Writer,
		read:  conns.Reader,
	}
}

// InTx runs fn against a transaction-bound Store. Serialization and deadlock
// failures surface as ErrConflict so callers can retry with a fresh read.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		bound := &Repository{db: r.db, write: tx, read: tx, inTx: true}
		return fn(ctx, bound)
	})
	if err != nil && isSerializationFailure(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func isSerializationFailure(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Field('C') {
		case "40001", "40P01":
			return true
		}
	}
	return false
}

// CreateAuction persists a new auction row.
func (r *Repository) CreateAuction(ctx context.Context, auction *entity.Auction) error {
	if auction == nil {
		return errors.New("nil auction")
	}
	ctx, span := repoTracer.Start(ctx, "LedgerRepository.CreateAuction", trace.WithAttributes(attribute.String("auction.title", auction.Title)))
	defer span.End()

	_, err := r.write.NewInsert().Model(auction).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// AuctionByID fetches an auction using the read connection.
func (r *Repository) AuctionByID(ctx context.Context, id int64) (*entity.Auction, error) {
	ctx, span := repoTracer.Start(ctx, "LedgerRepository.AuctionByID", trace.WithAttributes(attribute.Int64("auction.id", id)))
	defer span.End()

	auction := new(entity.Auction)
	err := r.read.NewSelect().Model(auction).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return auction, nil
}

// AuctionForUpdate fetches an auction through the writer, taking a row lock
// when called inside a transaction. The lock is what serializes concurrent
// placements on the same auction.
func (r *Repository) AuctionForUpdate(ctx context.Context, id int64) (*entity.Auction, error) {
	auction := new(entity.Auction)
	q := r.write.NewSelect().Model(auction).Where("id = ?", id)
	if r.inTx {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, err
	}
	return auction, nil
}

// UpdateAuction writes the listed columns of an auction row.
func (r *Repository) UpdateAuction(ctx context.Context, auction *entity.Auction, columns ...string) error {
	if auction == nil {
		return errors.New("nil auction")
	}
	q := r.write.NewUpdate().Model(auction).WherePK()
	if len(columns) > 0 {
		q = q.Column(columns...)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAuctionNotFound
	}
	return nil
}

// SetCurrentHighest rewrites the denormalized leader projection.
func (r *Repository) SetCurrentHighest(ctx context.Context, auctionID int64, amount decimal.Decimal, bidderID int64) error {
	res, err := r.write.NewUpdate().Model((*entity.Auction)(nil)).
		Set("current_highest_amount = ?", amount).
		Set("current_highest_bidder_id = ?", bidderID).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", auctionID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAuctionNotFound
	}
	return nil
}

// InsertBid appends a row to the bid ledger.
func (r *Repository) InsertBid(ctx context.Context, bid *entity.Bid) error {
	if bid == nil {
		return errors.New("nil bid")
	}
	ctx, span := repoTracer.Start(ctx, "LedgerRepository.InsertBid", trace.WithAttributes(
		attribute.Int64("auction.id", bid.AuctionID),
		attribute.Int64("bid.bidder_id", bid.BidderID),
	))
	defer span.End()

	_, err := r.write.NewInsert().Model(bid).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// ActiveBids returns the Leading and Outbid bids for an auction, the input
// set of proxy resolution.
func (r *Repository) ActiveBids(ctx context.Context, auctionID int64) ([]entity.Bid, error) {
	var bids []entity.Bid
	err := r.write.NewSelect().Model(&bids).
		Where("auction_id = ?", auctionID).
		Where("status IN (?)", bun.In([]entity.BidStatus{entity.BidLeading, entity.BidOutbid})).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bids, nil
}

// DemoteLeadingExcept flips every Leading bid of the auction to Outbid,
// sparing the resolved winner.
func (r *Repository) DemoteLeadingExcept(ctx context.Context, auctionID, keepBidID int64) error {
	_, err := r.write.NewUpdate().Model((*entity.Bid)(nil)).
		Set("status = ?", entity.BidOutbid).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("auction_id = ?", auctionID).
		Where("status = ?", entity.BidLeading).
		Where("id != ?", keepBidID).
		Exec(ctx)
	return err
}

// SetBidPlacement updates the winner's attributed amount and ranking status.
func (r *Repository) SetBidPlacement(ctx context.Context, bidID int64, amount decimal.Decimal, status entity.BidStatus) error {
	res, err := r.write.NewUpdate().Model((*entity.Bid)(nil)).
		Set("current_placed_amount = ?", amount).
		Set("status = ?", status).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", bidID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBidNotFound
	}
	return nil
}

// BidsByAuction lists every bid against an auction, highest placed first.
func (r *Repository) BidsByAuction(ctx context.Context, auctionID int64) ([]entity.Bid, error) {
	var bids []entity.Bid
	err := r.read.NewSelect().Model(&bids).
		Where("auction_id = ?", auctionID).
		Order("current_placed_amount DESC", "created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bids, nil
}

// BidsByBidder lists a user's bids, optionally filtered by settlement state.
func (r *Repository) BidsByBidder(ctx context.Context, bidderID int64, offerStatus *entity.OfferStatus) ([]entity.Bid, error) {
	var bids []entity.Bid
	q := r.read.NewSelect().Model(&bids).
		Where("bidder_id = ?", bidderID).
		Order("created_at DESC")
	if offerStatus != nil {
		q = q.Where("offer_status = ?", *offerStatus)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return bids, nil
}

// TopBidByOfferStatus returns the bid with the highest placed amount in the
// given settlement state, or ErrBidNotFound.
func (r *Repository) TopBidByOfferStatus(ctx context.Context, auctionID int64, status entity.OfferStatus) (*entity.Bid, error) {
	bid := new(entity.Bid)
	err := r.write.NewSelect().Model(bid).
		Where("auction_id = ?", auctionID).
		Where("offer_status = ?", status).
		Order("current_placed_amount DESC", "created_at ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBidNotFound
	}
	if err != nil {
		return nil, err
	}
	return bid, nil
}

// TopBidsByOfferStatuses returns up to limit bids in any of the given
// settlement states, highest placed first.
func (r *Repository) TopBidsByOfferStatuses(ctx context.Context, auctionID int64, statuses []entity.OfferStatus, limit int) ([]entity.Bid, error) {
	var bids []entity.Bid
	q := r.read.NewSelect().Model(&bids).
		Where("auction_id = ?", auctionID).
		Where("offer_status IN (?)", bun.In(statuses)).
		Order("current_placed_amount DESC", "created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return bids, nil
}

// SetOfferStatus advances the settlement state of a single bid.
func (r *Repository) SetOfferStatus(ctx context.Context, bidID int64, status entity.OfferStatus) error {
	res, err := r.write.NewUpdate().Model((*entity.Bid)(nil)).
		Set("offer_status = ?", status).
		Set("updated_at = CURRENT_TIMESTAMP").
		Where("id = ?", bidID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBidNotFound
	}
	return nil
}

// DistinctBidders lists every user that placed at least one bid on the
// auction, regardless of bid status.
func (r *Repository) DistinctBidders(ctx context.Context, auctionID int64) ([]int64, error) {
	var bidders []int64
	err := r.read.NewSelect().Model((*entity.Bid)(nil)).
		ColumnExpr("DISTINCT bidder_id").
		Where("auction_id = ?", auctionID).
		Scan(ctx, &bidders)
	if err != nil {
		return nil, err
	}
	return bidders, nil
}
