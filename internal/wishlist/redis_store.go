package wishlist

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

// RedisStore keeps one hash of items and one product index hash per customer.
// Writes run in WATCH/MULTI transactions so the index and the items never
// disagree.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, keyPrefix: "wishlist:"}
}

func (r *RedisStore) itemsKey(customerID string) string { return r.keyPrefix + customerID + ":items" }
func (r *RedisStore) indexKey(customerID string) string { return r.keyPrefix + customerID + ":index" }

func (r *RedisStore) List(ctx context.Context, customerID string) ([]Item, error) {
	raw, err := r.client.HVals(ctx, r.itemsKey(customerID)).Result()
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(raw))
	for _, v := range raw {
		var it Item
		if err := json.Unmarshal([]byte(v), &it); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (r *RedisStore) Add(ctx context.Context, item Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	itemsKey, indexKey := r.itemsKey(item.CustomerID), r.indexKey(item.CustomerID)

	return r.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, indexKey, item.key()).Result()
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, indexKey, item.key(), item.ID)
			pipe.HSet(ctx, itemsKey, item.ID, data)
			return nil
		})
		return err
	}, itemsKey, indexKey)
}

func (r *RedisStore) Remove(ctx context.Context, customerID, itemID string) error {
	itemsKey, indexKey := r.itemsKey(customerID), r.indexKey(customerID)

	return r.watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, itemsKey, itemID).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var it Item
		if err := json.Unmarshal([]byte(raw), &it); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, itemsKey, itemID)
			pipe.HDel(ctx, indexKey, it.key())
			return nil
		})
		return err
	}, itemsKey, indexKey)
}

func (r *RedisStore) Exists(ctx context.Context, customerID, productID, variantID string) (bool, error) {
	return r.client.HExists(ctx, r.indexKey(customerID), productKey(productID, variantID)).Result()
}

func (r *RedisStore) Clear(ctx context.Context, customerID string) error {
	return r.client.Del(ctx, r.itemsKey(customerID), r.indexKey(customerID)).Err()
}

// watch runs fn in an optimistic transaction, retrying when a watched key
// changed underneath it.
func (r *RedisStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = r.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}
