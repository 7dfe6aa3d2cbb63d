package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// TIMER_KEY_PREFIX namespaces delayed-trigger tokens; only keys under
	// it are surfaced by Subscribe.
	TIMER_KEY_PREFIX = "croupier:timer:"

	// MAX_TXN_RETRIES bounds optimistic-transaction retries when two
	// instances race on the same session key.
	MAX_TXN_RETRIES = 5

	SUBSCRIBE_BUFFER = 64
)

var ErrNotFound = errors.New("key not found")

// Store is the durable session store plus the delayed-trigger facility.
// Sessions live as JSON values and are never deleted; only the per-game
// active pointers come and go.
type Store struct {
	client *redis.Client
	db     int
}

func New(client *redis.Client, db int) *Store {
	return &Store{client: client, db: db}
}

// PutJSON writes v at key with no expiry.
func (s *Store) PutJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// GetJSON loads the value at key into v.
func (s *Store) GetJSON(ctx context.Context, key string, v interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// UpdateJSON runs an optimistic read-modify-write on key: it loads the
// current value into v, applies the mutation, and writes v back only if
// the key was untouched in between, retrying on conflict. An error from
// apply aborts the write and is returned unchanged.
func (s *Store) UpdateJSON(ctx context.Context, key string, v interface{}, apply func() error) error {
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}

		// Wipe v so a retry never carries fields from the aborted attempt.
		rv := reflect.ValueOf(v).Elem()
		rv.Set(reflect.Zero(rv.Type()))
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("unmarshal %s: %w", key, err)
		}

		if err := apply(); err != nil {
			return err
		}

		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for i := 0; i < MAX_TXN_RETRIES; i++ {
		err := s.client.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("update %s: too many conflicting writers", key)
}

// SetActiveNX installs id behind pointer only when nothing is installed,
// enforcing the at-most-one-active invariant at write time.
func (s *Store) SetActiveNX(ctx context.Context, pointer, id string) (bool, error) {
	ok, err := s.client.SetNX(ctx, pointer, id, 0).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", pointer, err)
	}
	return ok, nil
}

// Active returns the id behind pointer, empty when none.
func (s *Store) Active(ctx context.Context, pointer string) (string, error) {
	id, err := s.client.Get(ctx, pointer).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", pointer, err)
	}
	return id, nil
}

// releaseScript deletes the pointer only while it still holds the caller's
// id, so a slow process can never release a successor's session.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// ReleaseActive clears pointer if it still holds id.
func (s *Store) ReleaseActive(ctx context.Context, pointer, id string) error {
	res, err := releaseScript.Run(ctx, s.client, []string{pointer}, id).Result()
	if err != nil {
		return fmt.Errorf("release %s: %w", pointer, err)
	}
	if res == int64(0) {
		log.Printf("[STORE] Pointer %s already released or superseded", pointer)
	}
	return nil
}

// Arm sets the timer token with the given TTL if it is absent. The first
// process to arm wins; everyone then waits on the expiration notification.
func (s *Store) Arm(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, TIMER_KEY_PREFIX+token, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("arm %s: %w", token, err)
	}
	return ok, nil
}

// TimerExists reports whether the token is still armed.
func (s *Store) TimerExists(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, TIMER_KEY_PREFIX+token).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", token, err)
	}
	return n > 0, nil
}

// EnableExpiryEvents turns on keyspace expired-event notifications; call
// once at startup. Managed Redis offerings that forbid CONFIG SET need the
// flag preset, in which case the error is only logged by the caller.
func (s *Store) EnableExpiryEvents(ctx context.Context) error {
	return s.client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}

// Subscribe yields expired timer tokens (with TIMER_KEY_PREFIX stripped)
// until ctx is cancelled. Redis delivers each expiration once per
// subscriber; consumers must treat duplicates as no-ops regardless.
func (s *Store) Subscribe(ctx context.Context) (<-chan string, error) {
	channel := fmt.Sprintf("__keyevent@%d__:expired", s.db)
	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan string, SUBSCRIBE_BUFFER)
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, open := <-pubsub.Channel():
				if !open {
					return
				}
				token, matched := strings.CutPrefix(msg.Payload, TIMER_KEY_PREFIX)
				if !matched {
					continue
				}
				select {
				case out <- token:
				default:
					log.Printf("[STORE] Expiry channel full, dropping token %s", token)
				}
			}
		}
	}()
	return out, nil
}
