package seeder

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/velomarket/auction-service/internal/database"
	"github.com/velomarket/auction-service/internal/entity"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Auctions seeds a pair of open sample auctions if they are missing.
func (s *Seeder) Auctions(ctx context.Context) error {
	now := time.Now().UTC()
	expiry := now.AddDate(0, 0, 7)
	samples := []entity.Auction{
		{
			OwnerID:              1,
			Title:                "Steel gravel frameset 54cm",
			Description:          "Lightly used, small scratch on the top tube.",
			StartingBid:          decimal.NewFromInt(120),
			BidIncrement:         decimal.NewFromInt(5),
			MinimumBid:           decimal.NewFromInt(120),
			CurrentHighestAmount: decimal.NewFromInt(120),
			AdLifeDays:           7,
			StartDate:            &now,
			ExpiryDate:           &expiry,
			Status:               entity.LifecyclePublished,
			Moderation:           entity.ModerationAccepted,
			CreatedAt:            now,
			UpdatedAt:            now,
		},
		{
			OwnerID:              2,
			Title:                "Carbon wheelset 700c",
			Description:          "Tubeless ready, includes rotors.",
			StartingBid:          decimal.NewFromInt(300),
			BidIncrement:         decimal.NewFromInt(10),
			MinimumBid:           decimal.NewFromInt(300),
			CurrentHighestAmount: decimal.NewFromInt(300),
			AdLifeDays:           7,
			StartDate:            &now,
			ExpiryDate:           &expiry,
			Status:               entity.LifecyclePublished,
			Moderation:           entity.ModerationAccepted,
			CreatedAt:            now,
			UpdatedAt:            now,
		},
	}

	for _, sample := range samples {
		auction := sample
		_, err := s.db.NewInsert().Model(&auction).
			On("CONFLICT (owner_id, title) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded auctions", zap.Int("count", len(samples)))
	}
	return nil
}
