// Package membus provides an in-process implementation of the domain cache
// interfaces, used in sim mode and whenever Redis is disabled.
package membus

import (
	"context"
	"sync"
	"time"

	"github.com/wattsim/wattsim/internal/domain"
)

// Bus is an in-process domain.SignalBus. Subscribers are fan-out channels;
// a slow subscriber drops messages rather than blocking the publisher.
type Bus struct {
	mu     sync.Mutex
	subs   map[string][]chan []byte
	closed bool
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan []byte)}
}

// Publish delivers payload to every subscriber of channel.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber channel. The subscription ends when
// ctx is cancelled or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(channel, ch)
	}()

	return ch, nil
}

func (b *Bus) unsubscribe(channel string, ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[channel]
	for i, s := range subs {
		if s == ch {
			b.subs[channel] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close tears down all subscriptions.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for channel, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, channel)
	}
	return nil
}

// PriceCache is an in-process domain.PriceCache.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]pricedAt
}

type pricedAt struct {
	price float64
	ts    time.Time
}

// NewPriceCache creates an empty PriceCache.
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]pricedAt)}
}

// SetPrice stores the latest clearing price for a product.
func (pc *PriceCache) SetPrice(_ context.Context, marketID, productKey string, price float64, ts time.Time) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.prices[marketID+":"+productKey] = pricedAt{price: price, ts: ts}
	return nil
}

// GetPrice retrieves the latest clearing price for a product, or
// domain.ErrNotFound.
func (pc *PriceCache) GetPrice(_ context.Context, marketID, productKey string) (float64, time.Time, error) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	p, ok := pc.prices[marketID+":"+productKey]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p.price, p.ts, nil
}

// Compile-time interface checks.
var (
	_ domain.SignalBus  = (*Bus)(nil)
	_ domain.PriceCache = (*PriceCache)(nil)
)
