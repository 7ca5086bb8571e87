package signals

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"papertrader/src/model"
)

const (
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 4 * time.Second
)

// Client fetches signal snapshots from the signal service over REST.
type Client struct {
	baseURL string
	apiKey  string
	http    *resty.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration, retryCount int) *Client {
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{baseURL: baseURL, apiKey: apiKey, http: httpClient}
}

// Snapshot fetches the current indicator snapshot for one instrument.
// Optional fields absent from the payload stay nil, which downstream reads
// as "capability abstains".
func (c *Client) Snapshot(ctx context.Context, instrument string) (*model.SignalSnapshot, error) {
	var snap model.SignalSnapshot

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("instrument", instrument).
		SetResult(&snap)
	if c.apiKey != "" {
		req.SetHeader("X-Api-Key", c.apiKey)
	}

	resp, err := req.Get("/v1/snapshot")
	if err != nil {
		return nil, fmt.Errorf("signal fetch %s: %w", instrument, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("signal fetch %s: status %d: %s", instrument, resp.StatusCode(), resp.String())
	}
	if snap.Price.IsZero() {
		return nil, fmt.Errorf("signal fetch %s: empty price in payload", instrument)
	}

	snap.Instrument = instrument
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}

	logger.WithFields(logger.Fields{
		"instrument": instrument,
		"price":      snap.Price.String(),
	}).Debug("signal snapshot fetched")

	return &snap, nil
}
