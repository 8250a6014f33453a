package domain

import (
	"context"
	"time"
)

// PriceCache exposes the latest clearing price per market product, used for
// gradient checks between rounds and by the gateway.
type PriceCache interface {
	SetPrice(ctx context.Context, marketID, productKey string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, marketID, productKey string) (float64, time.Time, error)
}

// SignalBus carries opening and clearing broadcasts between the round
// controller and whatever transports participants listen on.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// PriceKeyLatest is the product key under which the most recent clearing
// price of a market is cached, regardless of product window. Gradient checks
// read this key because the next round trades different windows.
const PriceKeyLatest = "latest"

// Bus channel names used by the round controller.
const (
	ChannelOpening  = "market:opening"
	ChannelClearing = "market:clearing"
)
