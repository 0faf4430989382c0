// Command seed-db loads demo restaurants, users, catalog items, promotions and
// API keys into PostgreSQL.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/auth"
	"github.com/xenking/bistro/internal/domain/catalog"
	"github.com/xenking/bistro/internal/domain/promotion"
	"github.com/xenking/bistro/internal/handler"
	"github.com/xenking/bistro/internal/storage/postgres"
)

type seedFile struct {
	Restaurants []struct {
		ID    string   `json:"id"`
		Name  string   `json:"name"`
		Staff []string `json:"staff"`
	} `json:"restaurants"`
	Users []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Phone  string `json:"phone"`
		APIKey string `json:"apiKey"`
	} `json:"users"`
	Items []struct {
		ID           string          `json:"id"`
		RestaurantID string          `json:"restaurantId"`
		Name         string          `json:"name"`
		Price        decimal.Decimal `json:"price"`
		Available    bool            `json:"available"`
	} `json:"items"`
	Promotions []struct {
		ID                   string           `json:"id"`
		RestaurantID         string           `json:"restaurantId"`
		ItemIDs              []string         `json:"itemIds"`
		Title                string           `json:"title"`
		DiscountLabel        string           `json:"discountLabel"`
		Active               bool             `json:"active"`
		ExpiresAt            *time.Time       `json:"expiresAt"`
		MinOrder             *decimal.Decimal `json:"minOrder"`
		DeliveryTimeOverride string           `json:"deliveryTimeOverride"`
	} `json:"promotions"`
}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/bistro.json", "path to seed JSON file")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or BISTRO_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("BISTRO_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, seedPath, []byte(apiKeyPepper)); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, seedPath string, pepper []byte) error {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed file")
	}

	pool, err := postgres.NewPool(ctx, databaseURL, 0)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	s := postgres.NewSeeder(pool)

	for _, u := range seed.Users {
		if err := s.User(ctx, u.ID, u.Name, u.Phone); err != nil {
			return err
		}
		if u.APIKey == "" {
			continue
		}
		if err := s.APIKey(ctx, auth.APIKeyInfo{
			ID:      "dev-" + u.ID,
			KeyHash: handler.HashAPIKey(pepper, u.APIKey),
			Name:    "Development key for " + u.Name,
			UserID:  u.ID,
		}); err != nil {
			return err
		}
	}
	lg.Info("Seeded users", zap.Int("count", len(seed.Users)))

	for _, r := range seed.Restaurants {
		if err := s.Restaurant(ctx, r.ID, r.Name); err != nil {
			return err
		}
		for _, userID := range r.Staff {
			if err := s.Staff(ctx, r.ID, userID); err != nil {
				return err
			}
		}
	}
	lg.Info("Seeded restaurants", zap.Int("count", len(seed.Restaurants)))

	items := make([]catalog.Item, len(seed.Items))
	for i, it := range seed.Items {
		items[i] = catalog.Item{
			ID:           it.ID,
			RestaurantID: it.RestaurantID,
			Name:         it.Name,
			Price:        it.Price,
			Available:    it.Available,
		}
	}
	if err := postgres.NewCatalogRepository(pool).Upsert(ctx, items); err != nil {
		return err
	}
	lg.Info("Seeded catalog items", zap.Int("count", len(items)))

	promos := make([]promotion.Promotion, len(seed.Promotions))
	for i, p := range seed.Promotions {
		promos[i] = promotion.Promotion{
			ID:                   p.ID,
			RestaurantID:         p.RestaurantID,
			ItemIDs:              p.ItemIDs,
			Title:                p.Title,
			DiscountLabel:        p.DiscountLabel,
			Active:               p.Active,
			ExpiresAt:            p.ExpiresAt,
			MinOrder:             p.MinOrder,
			DeliveryTimeOverride: p.DeliveryTimeOverride,
		}
	}
	if err := s.Promotions(ctx, promos); err != nil {
		return err
	}
	lg.Info("Seeded promotions", zap.Int("count", len(promos)))

	return nil
}
