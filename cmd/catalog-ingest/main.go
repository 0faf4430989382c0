// Command catalog-ingest imports restaurant catalog feeds into PostgreSQL.
//
// Each feed is a gzip-compressed JSON Lines file with one catalog item per
// line. Within a feed the last line for an item wins. An item that appears in
// more than one feed has no single source of truth; it is reported and
// skipped.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"math/bits"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bistro/internal/domain/catalog"
	"github.com/xenking/bistro/internal/storage/postgres"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	batchSize     = 500
	maxFeeds      = 64
)

type feedLine struct {
	ID           string          `json:"id"`
	RestaurantID string          `json:"restaurantId"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Available    *bool           `json:"available"`
}

// feed is one parsed input file.
type feed struct {
	path   string
	items  map[string]catalog.Item
	filter *bloom.BloomFilter
}

func itemKey(restaurantID, id string) string {
	return restaurantID + "/" + id
}

func main() {
	var (
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and validate feeds without writing")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	paths := flag.Args()
	if len(paths) == 0 || len(paths) > maxFeeds {
		lg.Fatal("Usage: catalog-ingest [flags] feed1.jsonl.gz [feed2.jsonl.gz ...]", zap.Int("max_feeds", maxFeeds))
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, paths, databaseURL, dryRun); err != nil {
		lg.Fatal("Catalog ingest failed", zap.Error(err))
	}
	lg.Info("Catalog ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, paths []string, databaseURL string, dryRun bool) error {
	feeds, err := loadFeeds(ctx, lg, paths)
	if err != nil {
		return errors.Wrap(err, "load feeds")
	}

	items, conflicts := merge(feeds)
	for _, key := range conflicts {
		lg.Warn("Item appears in several feeds, skipped", zap.String("item", key))
	}
	lg.Info("Feeds merged",
		zap.Int("feeds", len(feeds)),
		zap.Int("items", len(items)),
		zap.Int("conflicts", len(conflicts)),
	)

	if dryRun || len(items) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL, 0)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewCatalogRepository(pool)
	for batch := range slices.Chunk(items, batchSize) {
		if err := repo.Upsert(ctx, batch); err != nil {
			return errors.Wrap(err, "upsert catalog items")
		}
	}
	lg.Info("Catalog items written", zap.Int("count", len(items)))
	return nil
}

// loadFeeds parses every feed concurrently.
func loadFeeds(ctx context.Context, lg *zap.Logger, paths []string) ([]feed, error) {
	feeds := make([]feed, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			f, err := parseFeed(ctx, path)
			if err != nil {
				return errors.Wrapf(err, "parse %s", path)
			}
			lg.Info("Feed parsed", zap.String("path", path), zap.Int("items", len(f.items)))
			feeds[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return feeds, nil
}

func parseFeed(ctx context.Context, path string) (feed, error) {
	f := feed{
		path:   path,
		items:  make(map[string]catalog.Item),
		filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}

	file, err := os.Open(path)
	if err != nil {
		return f, errors.Wrap(err, "open")
	}
	defer func() { _ = file.Close() }()

	gz, err := pgzip.NewReader(file)
	if err != nil {
		return f, errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	var lineNo int
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return f, err
		}
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var line feedLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return f, errors.Wrapf(err, "line %d", lineNo)
		}
		item, err := line.item()
		if err != nil {
			return f, errors.Wrapf(err, "line %d", lineNo)
		}

		key := itemKey(item.RestaurantID, item.ID)
		f.items[key] = item
		f.filter.AddString(key)
	}
	if err := scanner.Err(); err != nil {
		return f, errors.Wrap(err, "scan")
	}
	return f, nil
}

func (l feedLine) item() (catalog.Item, error) {
	switch {
	case l.ID == "" || l.RestaurantID == "":
		return catalog.Item{}, errors.New("id and restaurantId are required")
	case l.Name == "":
		return catalog.Item{}, errors.New("name is required")
	case l.Price.IsNegative():
		return catalog.Item{}, errors.New("price must not be negative")
	}
	available := true
	if l.Available != nil {
		available = *l.Available
	}
	return catalog.Item{
		ID:           l.ID,
		RestaurantID: l.RestaurantID,
		Name:         l.Name,
		Price:        l.Price.Truncate(0),
		Available:    available,
	}, nil
}

// merge returns the items found in exactly one feed, sorted by key, and the
// keys found in several. Bloom filters of the other feeds only nominate
// candidates; a key is a conflict once two feeds have confirmed it from their
// own item sets, so false positives never drop an item.
func merge(feeds []feed) ([]catalog.Item, []string) {
	seenIn := make(map[string]uint)
	for i, f := range feeds {
		bit := uint(1) << uint(i)
		for key := range f.items {
			for j, other := range feeds {
				if j != i && other.filter.TestString(key) {
					seenIn[key] |= bit
					break
				}
			}
		}
	}

	var (
		items     []catalog.Item
		conflicts []string
	)
	for _, f := range feeds {
		for key, item := range f.items {
			if bits.OnesCount(seenIn[key]) >= 2 {
				continue
			}
			items = append(items, item)
		}
	}
	for key, mask := range seenIn {
		if bits.OnesCount(mask) >= 2 {
			conflicts = append(conflicts, key)
		}
	}

	slices.SortFunc(items, func(a, b catalog.Item) int {
		return strings.Compare(itemKey(a.RestaurantID, a.ID), itemKey(b.RestaurantID, b.ID))
	})
	slices.Sort(conflicts)
	return items, conflicts
}

