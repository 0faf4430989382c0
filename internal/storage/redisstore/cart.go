// Package redisstore implements the cart repository on Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xenking/bistro/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// A cart is four keys sharing one hash slot:
//
//	cart:{user}:restaurant  string, owning restaurant
//	cart:{user}:lines       hash, catalog item id -> line JSON (first add wins)
//	cart:{user}:qty         hash, catalog item id -> quantity
//	cart:{user}:order       zset, catalog item id scored by add time
//
// Writers go through Lua scripts, so each mutation is atomic on the server.
func cartKeys(userID string) []string {
	prefix := "cart:{" + userID + "}:"
	return []string{prefix + "restaurant", prefix + "lines", prefix + "qty", prefix + "order"}
}

var addScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current and current ~= ARGV[2] then
	return {0, current}
end
redis.call('SET', KEYS[1], ARGV[2])
redis.call('HSETNX', KEYS[2], ARGV[1], ARGV[4])
redis.call('ZADD', KEYS[4], 'NX', ARGV[5], ARGV[1])
local qty = redis.call('HINCRBY', KEYS[3], ARGV[1], ARGV[3])
local ttl = tonumber(ARGV[6])
if ttl > 0 then
	for i = 1, #KEYS do
		redis.call('EXPIRE', KEYS[i], ttl)
	end
end
return {1, redis.call('HGET', KEYS[2], ARGV[1]), qty}
`)

var removeScript = redis.NewScript(`
if redis.call('HDEL', KEYS[2], ARGV[1]) == 0 then
	return 0
end
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
if redis.call('HLEN', KEYS[2]) == 0 then
	redis.call('DEL', KEYS[1], KEYS[2], KEYS[3], KEYS[4])
end
return 1
`)

// ARGV holds catalog item id and ordered quantity pairs.
var clearOrderedScript = redis.NewScript(`
for i = 1, #ARGV, 2 do
	local id = ARGV[i]
	local qty = tonumber(redis.call('HGET', KEYS[3], id))
	if qty then
		local ordered = tonumber(ARGV[i + 1])
		if qty > ordered then
			redis.call('HINCRBY', KEYS[3], id, -ordered)
		else
			redis.call('HDEL', KEYS[2], id)
			redis.call('HDEL', KEYS[3], id)
			redis.call('ZREM', KEYS[4], id)
		end
	end
end
if redis.call('HLEN', KEYS[2]) == 0 then
	redis.call('DEL', KEYS[1], KEYS[2], KEYS[3], KEYS[4])
end
return 1
`)

// CartRepository implements cart.Repository backed by Redis.
type CartRepository struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewCartRepository returns a CartRepository. A positive ttl expires idle
// carts; it is refreshed on every add.
func NewCartRepository(rdb redis.UniversalClient, ttl time.Duration) *CartRepository {
	return &CartRepository{rdb: rdb, ttl: ttl}
}

func (r *CartRepository) Add(ctx context.Context, item cart.Item) (*cart.Item, error) {
	line := item
	line.Quantity = 0
	lineJSON, err := json.Marshal(line)
	if err != nil {
		return nil, fmt.Errorf("marshaling cart line: %w", err)
	}

	res, err := addScript.Run(ctx, r.rdb, cartKeys(item.UserID),
		item.CatalogItemID,
		item.RestaurantID,
		item.Quantity,
		lineJSON,
		item.AddedAt.UnixMilli(),
		ttlSeconds(r.ttl),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("adding cart item %q: %w", item.CatalogItemID, err)
	}

	if ok, _ := res[0].(int64); ok == 0 {
		current, _ := res[1].(string)
		return nil, &cart.CrossRestaurantError{
			CartRestaurantID:      current,
			RequestedRestaurantID: item.RestaurantID,
		}
	}

	raw, _ := res[1].(string)
	qty, _ := res[2].(int64)
	stored, err := decodeLine(raw, int(qty))
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *CartRepository) List(ctx context.Context, userID string) ([]cart.Item, error) {
	keys := cartKeys(userID)

	var (
		order *redis.StringSliceCmd
		lines *redis.MapStringStringCmd
		qty   *redis.MapStringStringCmd
	)
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		order = p.ZRange(ctx, keys[3], 0, -1)
		lines = p.HGetAll(ctx, keys[1])
		qty = p.HGetAll(ctx, keys[2])
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing cart of %q: %w", userID, err)
	}

	items := make([]cart.Item, 0, len(order.Val()))
	for _, id := range order.Val() {
		raw, ok := lines.Val()[id]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(qty.Val()[id])
		if err != nil {
			return nil, fmt.Errorf("parsing quantity of %q: %w", id, err)
		}
		it, err := decodeLine(raw, n)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, nil
}

func (r *CartRepository) Remove(ctx context.Context, userID, catalogItemID string) error {
	n, err := removeScript.Run(ctx, r.rdb, cartKeys(userID), catalogItemID).Int()
	if err != nil {
		return fmt.Errorf("removing cart item %q: %w", catalogItemID, err)
	}
	if n == 0 {
		return cart.ErrItemNotInCart
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if err := r.rdb.Del(ctx, cartKeys(userID)...).Err(); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}

func (r *CartRepository) ClearOrdered(ctx context.Context, userID string, ordered []cart.Item) error {
	if len(ordered) == 0 {
		return nil
	}
	args := make([]any, 0, 2*len(ordered))
	for _, it := range ordered {
		args = append(args, it.CatalogItemID, it.Quantity)
	}
	if err := clearOrderedScript.Run(ctx, r.rdb, cartKeys(userID), args...).Err(); err != nil {
		return fmt.Errorf("clearing ordered items of %q: %w", userID, err)
	}
	return nil
}

// ttlSeconds rounds up so that a sub-second TTL still expires the cart.
func ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return int64((ttl + time.Second - 1) / time.Second)
}

func decodeLine(raw string, qty int) (*cart.Item, error) {
	var it cart.Item
	if err := json.Unmarshal([]byte(raw), &it); err != nil {
		return nil, fmt.Errorf("unmarshaling cart line: %w", err)
	}
	it.Quantity = qty
	return &it, nil
}
