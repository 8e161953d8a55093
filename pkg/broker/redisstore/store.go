// Package redisstore is an optional Store for pkg/broker.Switchboard,
// giving multiple broker replicas a shared view of worker capacity via
// Redis. It mirrors slot claims only: it is not a channel for recovering
// a specific in-flight run, and a broker functions correctly with a nil
// Store (each replica just sees its own directly-connected workers).
//
// Slots are pushed with a transactional pipeline and popped with a Lua
// script run through Eval, forming a claim-checked slot queue.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// popScript pops the oldest slot id from the queue and returns both the
// slot id and its worker id, atomically, so a concurrent PopSlot from
// another broker replica can never observe (or claim) the same slot twice.
const popScript = `
local slotID = redis.call("lpop", KEYS[1])
if not slotID then
	return nil
end
local workerID = redis.call("hget", KEYS[2], slotID)
redis.call("hdel", KEYS[2], slotID)
return {slotID, workerID}
`

// Store implements broker.Store on top of a Redis list (the slot queue, in
// claim order) plus a hash (slot id → worker id).
type Store struct {
	client     *redis.Client
	queueKey   string
	workersKey string
}

// New wraps an already-connected client with the given key prefix.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "reasonchip:broker:"
	}
	return &Store{
		client:     client,
		queueKey:   prefix + "slots",
		workersKey: prefix + "slot_workers",
	}
}

// PushSlot appends one capacity slot for workerID to the shared queue.
func (s *Store) PushSlot(workerID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slotID := uuid.NewString()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.workersKey, slotID, workerID)
	pipe.RPush(ctx, s.queueKey, slotID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: push slot: %w", err)
	}
	return nil
}

// PopSlot claims the oldest slot in the shared queue and returns the
// worker id it belonged to.
func (s *Store) PopSlot() (workerID string, ok bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := s.client.Eval(ctx, popScript, []string{s.queueKey, s.workersKey}).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redisstore: pop slot: %w", err)
	}
	if res == nil {
		return "", false, nil
	}

	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 || pair[1] == nil {
		return "", false, nil
	}
	return pair[1].(string), true, nil
}

// RemoveWorkerSlots drops every queued slot belonging to workerID, called
// when the broker observes that worker's connection drop.
func (s *Store) RemoveWorkerSlots(workerID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	all, err := s.client.HGetAll(ctx, s.workersKey).Result()
	if err != nil {
		return fmt.Errorf("redisstore: scanning slot owners: %w", err)
	}

	var toRemove []string
	for slotID, owner := range all {
		if owner == workerID {
			toRemove = append(toRemove, slotID)
		}
	}
	if len(toRemove) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, slotID := range toRemove {
		pipe.LRem(ctx, s.queueKey, 0, slotID)
		pipe.HDel(ctx, s.workersKey, slotID)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redisstore: removing worker slots: %w", err)
	}
	return nil
}
