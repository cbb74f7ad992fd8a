// Package bus provides addressed message transport between agents.
package bus

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/pnguyenfetchai/study-assistant/internal/domain"
)

// Handler is an agent registered on the bus. HandleFrame is invoked by a
// single goroutine per agent, so handlers for the same agent never
// interleave.
type Handler interface {
	Address() string
	HandleFrame(ctx context.Context, frame domain.Frame)
}

// Bus delivers frames to named agents by stable address. Delivery is
// at-least-once and unordered across independent senders.
type Bus interface {
	Register(h Handler) error
	Unregister(addr string) error
	Send(ctx context.Context, frame domain.Frame) error
	Close() error
}

const mailboxSize = 256

type mailbox struct {
	ch   chan domain.Frame
	quit chan struct{}
}

// MemoryBus is the in-process transport: one buffered mailbox and one
// sequential consumer loop per registered agent.
type MemoryBus struct {
	mailboxes map[string]*mailbox
	done      chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		mailboxes: make(map[string]*mailbox),
		done:      make(chan struct{}),
	}
}

// Register adds an agent and starts its mailbox loop.
func (b *MemoryBus) Register(h Handler) error {
	addr := h.Address()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("bus is closed")
	}
	if _, exists := b.mailboxes[addr]; exists {
		b.mu.Unlock()
		return fmt.Errorf("address %s already registered", addr)
	}
	mb := &mailbox{ch: make(chan domain.Frame, mailboxSize), quit: make(chan struct{})}
	b.mailboxes[addr] = mb
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case frame := <-mb.ch:
				h.HandleFrame(context.Background(), frame)
			case <-mb.quit:
				return
			case <-b.done:
				return
			}
		}
	}()

	return nil
}

// Unregister removes an agent and stops its loop. Queued frames are
// dropped; senders to the address start getting errors.
func (b *MemoryBus) Unregister(addr string) error {
	b.mu.Lock()
	mb, ok := b.mailboxes[addr]
	if ok {
		delete(b.mailboxes, addr)
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("no agent registered at %s", addr)
	}
	close(mb.quit)
	return nil
}

// Send enqueues a frame to the destination mailbox.
func (b *MemoryBus) Send(ctx context.Context, frame domain.Frame) error {
	b.mu.RLock()
	mb, ok := b.mailboxes[frame.To]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no agent registered at %s", frame.To)
	}

	select {
	case mb.ch <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return fmt.Errorf("bus is closed")
	}
}

// Close stops all mailbox loops. Frames still queued are dropped.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// SendMessage is a convenience wrapper that frames and sends a typed
// message. Delivery errors are returned to the caller; most agents log and
// continue, matching the contain-at-the-boundary policy.
func SendMessage(ctx context.Context, b Bus, from, to string, msg interface{}) error {
	frame, err := domain.NewFrame(from, to, msg)
	if err != nil {
		return err
	}
	if err := b.Send(ctx, frame); err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", frame.Kind, to, err)
	}
	return nil
}

// MustSend sends and logs the error instead of returning it, for fire-and-
// forget paths where no reply is owed.
func MustSend(ctx context.Context, b Bus, from, to string, msg interface{}) {
	if err := SendMessage(ctx, b, from, to, msg); err != nil {
		log.Printf("ERROR: delivery from %s to %s failed: %v", from, to, err)
	}
}
