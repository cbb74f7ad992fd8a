package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pnguyenfetchai/study-assistant/internal/domain"
)

const (
	streamPrefix = "agent:"
	groupSuffix  = "-group"
	readBlock    = 5 * time.Second
)

// RedisBus is the distributed transport: one Redis Stream per agent
// address, consumed through a consumer group so delivery is at-least-once
// with per-message acknowledgment.
type RedisBus struct {
	rdb    *redis.Client
	cancel context.CancelFunc
	ctx    context.Context
	wg     sync.WaitGroup

	mu        sync.Mutex
	consumers map[string]context.CancelFunc
}

// NewRedisBus connects to Redis and returns a bus.
func NewRedisBus(addr string) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBus{
		rdb:       redis.NewClient(&redis.Options{Addr: addr}),
		ctx:       ctx,
		cancel:    cancel,
		consumers: make(map[string]context.CancelFunc),
	}
}

// Register creates the agent's stream and consumer group and starts the
// consume loop. Each agent has exactly one consumer, so handling stays
// sequential per agent.
func (b *RedisBus) Register(h Handler) error {
	addr := h.Address()
	stream := streamPrefix + addr
	group := addr + groupSuffix

	err := b.rdb.XGroupCreateMkStream(b.ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group for %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(b.ctx)
	b.mu.Lock()
	if _, exists := b.consumers[addr]; exists {
		b.mu.Unlock()
		cancel()
		return fmt.Errorf("address %s already registered", addr)
	}
	b.consumers[addr] = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go b.consumeLoop(ctx, h, stream, group)
	return nil
}

// Unregister stops the agent's consume loop. The stream itself is kept so
// in-flight frames survive until a re-register.
func (b *RedisBus) Unregister(addr string) error {
	b.mu.Lock()
	cancel, ok := b.consumers[addr]
	if ok {
		delete(b.consumers, addr)
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("no agent registered at %s", addr)
	}
	cancel()
	return nil
}

func (b *RedisBus) consumeLoop(ctx context.Context, h Handler, stream, group string) {
	defer b.wg.Done()

	consumer := group + "-1"
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    1,
			Block:    readBlock,
		}).Result()

		if err == redis.Nil || (err != nil && ctx.Err() != nil) {
			continue
		}
		if err != nil {
			log.Printf("ERROR: failed to read stream %s: %v", stream, err)
			time.Sleep(time.Second)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				b.handleStreamMessage(h, stream, group, msg)
			}
		}
	}
}

func (b *RedisBus) handleStreamMessage(h Handler, stream, group string, msg redis.XMessage) {
	raw, ok := msg.Values["frame"].(string)
	if !ok {
		log.Printf("WARN: stream message %s missing frame field, acking and dropping", msg.ID)
		b.rdb.XAck(b.ctx, stream, group, msg.ID)
		return
	}

	var frame domain.Frame
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		log.Printf("ERROR: failed to unmarshal frame from %s: %v", stream, err)
		b.rdb.XAck(b.ctx, stream, group, msg.ID)
		return
	}

	h.HandleFrame(b.ctx, frame)

	// Ack after handling: a crash mid-handler redelivers (at-least-once).
	b.rdb.XAck(b.ctx, stream, group, msg.ID)
}

// Send appends the frame to the destination agent's stream.
func (b *RedisBus) Send(ctx context.Context, frame domain.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamPrefix + frame.To,
		Values: map[string]interface{}{"frame": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to append to stream for %s: %w", frame.To, err)
	}
	return nil
}

// Close stops all consume loops and closes the connection.
func (b *RedisBus) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.rdb.Close()
}
