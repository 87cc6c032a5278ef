// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

/*
poller.go - Latest Telemetry Poller

Periodically fetches the latest telemetry for one device and hands every
usable sample to the Reconciler. It runs alongside the push subscriber for
the whole session, so a silent push channel never leaves the map stale.

Cadence is fixed: a failed fetch is logged and reported, and the next tick
fires on schedule.
*/

package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/metrics"
	"github.com/tomtom215/fleettrack/internal/models"
)

// PollerConfig holds polling cadence settings.
type PollerConfig struct {
	Interval       time.Duration
	RequestTimeout time.Duration
}

// Poller polls the provider for one credential's device.
type Poller struct {
	client LatestFetcher
	cred   models.TrackingCredential
	config PollerConfig
	sink   Sink

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPoller creates a poller. Nothing happens until Start.
func NewPoller(client LatestFetcher, cred models.TrackingCredential, config PollerConfig, sink Sink) *Poller {
	return &Poller{
		client: client,
		cred:   cred,
		config: config,
		sink:   sink,
	}
}

// Start begins the polling loop. The first fetch is issued immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopChan = make(chan struct{})
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	logging.Debug().
		Str("device", p.cred.Handle()).
		Dur("interval", p.config.Interval).
		Msg("Starting telemetry poller")

	p.wg.Add(1)
	go p.pollLoop(ctx)

	return nil
}

// Stop stops the polling loop and aborts any in-flight request. Its result,
// if any, is discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	logging.Debug().Str("device", p.cred.Handle()).Msg("Telemetry poller stopped")
}

// FetchOnce issues a single latest-telemetry request bounded by the request timeout.
func (p *Poller) FetchOnce(ctx context.Context) (models.LocationSample, error) {
	if p.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.RequestTimeout)
		defer cancel()
	}
	return p.client.FetchLatest(ctx, p.cred)
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	p.poll(ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll runs one tick and reports the outcome to the sink.
func (p *Poller) poll(ctx context.Context) {
	start := time.Now()
	sample, err := p.FetchOnce(ctx)

	// Torn down while the request was in flight.
	if ctx.Err() != nil {
		return
	}

	switch {
	case err == nil:
		metrics.RecordPoll("success", time.Since(start))
		p.sink.OnChannelStatus(models.SourcePoll, models.LinkUp)
		p.sink.OnCandidate(sample, models.SourcePoll)

	case errors.Is(err, ErrInvalidPayload):
		metrics.RecordPoll("invalid_payload", time.Since(start))
		logging.Debug().Str("device", p.cred.Handle()).Msg("Poll returned no usable location")
		p.sink.OnChannelStatus(models.SourcePoll, models.LinkUp)

	default:
		metrics.RecordPoll("error", time.Since(start))
		logging.Ctx(ctx).Warn().Err(err).Str("device", p.cred.Handle()).Msg("Telemetry poll failed")
		p.sink.OnChannelStatus(models.SourcePoll, models.LinkDown)
	}
}
