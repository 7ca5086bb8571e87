package signals

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"papertrader/src/model"
)

const (
	streamReadTimeout      = 90 * time.Second
	streamReconnectBackoff = 5 * time.Second
)

type tickerMessage struct {
	Instrument string          `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
}

// PriceStream keeps the most recent traded price per instrument from the
// signal service's websocket feed. Snapshot fetches are comparatively slow;
// the stream lets decisions between full fetches use a fresher price.
type PriceStream struct {
	url string

	mu     sync.RWMutex
	prices map[string]decimal.Decimal
	seen   map[string]time.Time
}

func NewPriceStream(url string) *PriceStream {
	return &PriceStream{
		url:    url,
		prices: make(map[string]decimal.Decimal),
		seen:   make(map[string]time.Time),
	}
}

// Run blocks, reconnecting on failure, until ctx is cancelled.
func (s *PriceStream) Run(ctx context.Context) {
	for {
		if err := s.consume(ctx); err != nil {
			logger.WithError(err).Warn("price stream disconnected")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(streamReconnectBackoff):
		}
	}
}

func (s *PriceStream) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.WithField("url", s.url).Info("price stream connected")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(streamReadTimeout)); err != nil {
			return err
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg tickerMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			logger.WithError(err).Debug("skipping malformed ticker message")
			continue
		}
		if msg.Instrument == "" || msg.Price.IsZero() {
			continue
		}

		s.mu.Lock()
		s.prices[msg.Instrument] = msg.Price
		s.seen[msg.Instrument] = time.Now()
		s.mu.Unlock()
	}
}

// Last returns the most recent streamed price and its receive time.
func (s *PriceStream) Last(instrument string) (decimal.Decimal, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[instrument]
	if !ok {
		return decimal.Zero, time.Time{}, false
	}
	return price, s.seen[instrument], true
}

// StreamAdapter overlays streamed prices onto snapshots from the inner
// adapter whenever the stream has a fresher quote.
type StreamAdapter struct {
	inner  Adapter
	stream *PriceStream
}

func NewStreamAdapter(inner Adapter, stream *PriceStream) *StreamAdapter {
	return &StreamAdapter{inner: inner, stream: stream}
}

func (a *StreamAdapter) Snapshot(ctx context.Context, instrument string) (*model.SignalSnapshot, error) {
	snap, err := a.inner.Snapshot(ctx, instrument)
	if err != nil {
		return nil, err
	}
	if price, seen, ok := a.stream.Last(instrument); ok && seen.After(snap.FetchedAt) {
		snap.Price = price
		snap.FetchedAt = seen
	}
	return snap, nil
}
