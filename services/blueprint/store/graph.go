// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/originseedlabs/originseed/services/blueprint/datatypes"
	"github.com/originseedlabs/originseed/services/blueprint/observability"
)

// ErrGraphUnavailable is returned when the graph backend cannot be reached.
// The snapshot store never surfaces it to callers; it only affects whether
// the best-effort graph copy happens.
var ErrGraphUnavailable = errors.New("graph backend is not available")

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// GraphConfig configures the best-effort Weaviate backend.
type GraphConfig struct {
	// URL of the Weaviate server (e.g. "http://localhost:8080").
	URL string

	// RetryAttempts per write. Default: 2. Writes are best-effort, so the
	// budget is smaller than a read-path client would carry.
	RetryAttempts int

	// RetryBackoff is the initial backoff between retries. Default: 100ms.
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the exponential backoff. Default: 2s.
	MaxRetryBackoff time.Duration

	// HealthCheckInterval while the backend is healthy. Default: 10s.
	HealthCheckInterval time.Duration

	// DegradedCheckInterval while the backend is down. Default: 5s.
	DegradedCheckInterval time.Duration

	// HealthCheckTimeout bounds one readiness probe. Default: 5s.
	HealthCheckTimeout time.Duration

	// Logger for backend operations. Default: slog.Default().
	Logger *slog.Logger
}

func (c *GraphConfig) applyDefaults() {
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 2
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.MaxRetryBackoff == 0 {
		c.MaxRetryBackoff = 2 * time.Second
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = 10 * time.Second
	}
	if c.DegradedCheckInterval == 0 {
		c.DegradedCheckInterval = 5 * time.Second
	}
	if c.HealthCheckTimeout == 0 {
		c.HealthCheckTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks the configuration.
func (c *GraphConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url must not be empty")
	}
	if c.RetryAttempts < 0 {
		return errors.New("retry_attempts must be non-negative")
	}
	if c.HealthCheckTimeout <= 0 {
		return errors.New("health_check_timeout must be positive")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Graph Backend
// -----------------------------------------------------------------------------

// GraphBackend wraps the Weaviate client with health gating. The backend
// always starts degraded and a background prober promotes it once the
// server answers readiness; from then on every sustained failure demotes
// it again. Writes while degraded are skipped, not queued.
//
// Thread Safety: safe for concurrent use.
type GraphBackend struct {
	client *weaviate.Client
	config GraphConfig
	logger *slog.Logger

	healthy atomic.Bool
	closed  atomic.Bool

	healthCtx    context.Context
	healthCancel context.CancelFunc
	healthWg     sync.WaitGroup
}

// NewGraphBackend builds the backend and starts its health prober. A
// Weaviate that is down at startup is not an error; the backend simply
// stays degraded until the prober sees it recover.
func NewGraphBackend(config GraphConfig) (*GraphBackend, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph config: %w", err)
	}

	cfg := weaviate.Config{Host: config.URL, Scheme: "http"}
	if len(config.URL) > 8 && config.URL[:8] == "https://" {
		cfg.Scheme = "https"
		cfg.Host = config.URL[8:]
	} else if len(config.URL) > 7 && config.URL[:7] == "http://" {
		cfg.Host = config.URL[7:]
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	healthCtx, healthCancel := context.WithCancel(context.Background())
	gb := &GraphBackend{
		client:       client,
		config:       config,
		logger:       config.Logger.With(slog.String("component", "graph_backend")),
		healthCtx:    healthCtx,
		healthCancel: healthCancel,
	}

	if err := gb.checkHealth(context.Background()); err == nil {
		if schemaErr := datatypes.EnsureWeaviateSchema(context.Background(), client); schemaErr != nil {
			gb.logger.Warn("graph schema setup failed, staying degraded",
				slog.String("error", schemaErr.Error()))
		} else {
			gb.healthy.Store(true)
			gb.logger.Info("graph backend connected", slog.String("url", config.URL))
		}
	} else {
		gb.logger.Warn("graph backend unavailable at startup, starting degraded",
			slog.String("url", config.URL),
			slog.String("error", err.Error()))
	}

	gb.healthWg.Add(1)
	go gb.runHealthChecker()

	return gb, nil
}

// Available reports whether the backend currently accepts writes.
func (g *GraphBackend) Available() bool {
	return g.healthy.Load() && !g.closed.Load()
}

// Close stops the health prober.
func (g *GraphBackend) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	g.healthCancel()
	g.healthWg.Wait()
	return nil
}

func (g *GraphBackend) checkHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.config.HealthCheckTimeout)
	defer cancel()

	ready, err := g.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("readiness probe failed: %w", err)
	}
	if !ready {
		return ErrGraphUnavailable
	}
	return nil
}

func (g *GraphBackend) runHealthChecker() {
	defer g.healthWg.Done()

	for {
		interval := g.config.HealthCheckInterval
		if !g.healthy.Load() {
			interval = g.config.DegradedCheckInterval
		}

		select {
		case <-g.healthCtx.Done():
			return
		case <-time.After(interval):
			g.probe()
		}
	}
}

func (g *GraphBackend) probe() {
	err := g.checkHealth(g.healthCtx)
	wasHealthy := g.healthy.Load()

	switch {
	case err == nil && !wasHealthy:
		// Recovered. Re-ensure the schema before accepting writes; the
		// server may have come back empty.
		if schemaErr := datatypes.EnsureWeaviateSchema(g.healthCtx, g.client); schemaErr != nil {
			g.logger.Warn("graph recovered but schema setup failed",
				slog.String("error", schemaErr.Error()))
			return
		}
		g.healthy.Store(true)
		g.logger.Info("graph backend recovered")
	case err != nil && wasHealthy:
		g.healthy.Store(false)
		observability.Metrics().GraphDegradedTotal.Inc()
		g.logger.Warn("graph backend degraded", slog.String("error", err.Error()))
	}
}

// execute runs one operation with retry and marks the backend degraded
// when the final attempt still fails on a network-shaped error.
func (g *GraphBackend) execute(ctx context.Context, op string, fn func() error) error {
	if g.closed.Load() {
		return ErrGraphUnavailable
	}
	if !g.healthy.Load() {
		return ErrGraphUnavailable
	}

	ctx, span := otel.Tracer("store").Start(ctx, "graph."+op,
		trace.WithAttributes(attribute.String("backend", "weaviate")))
	defer span.End()

	var lastErr error
	for attempt := 0; attempt <= g.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := g.backoff(attempt)
			span.AddEvent("retry", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.Int64("backoff_ms", backoff.Milliseconds())))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			span.SetStatus(codes.Ok, "success")
			return nil
		}
		if !isRetryable(lastErr) {
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all retries failed")

	if isRetryable(lastErr) && g.healthy.Swap(false) {
		observability.Metrics().GraphDegradedTotal.Inc()
		g.logger.Warn("graph backend degraded after failed writes",
			slog.String("operation", op),
			slog.String("error", lastErr.Error()))
	}
	return fmt.Errorf("graph %s: %w", op, lastErr)
}

func (g *GraphBackend) backoff(attempt int) time.Duration {
	backoff := g.config.RetryBackoff * time.Duration(1<<attempt)
	if backoff > g.config.MaxRetryBackoff {
		backoff = g.config.MaxRetryBackoff
	}
	// ±25% jitter.
	jitter := (rand.Float64()*2 - 1) * float64(backoff) * 0.25
	backoff = time.Duration(float64(backoff) + jitter)
	if backoff < 0 {
		backoff = g.config.RetryBackoff
	}
	return backoff
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// -----------------------------------------------------------------------------
// Writes
// -----------------------------------------------------------------------------

// WriteSignalSnapshot copies a signal capture into the graph.
func (g *GraphBackend) WriteSignalSnapshot(ctx context.Context, snap *datatypes.SignalSnapshot) error {
	signalJSON, err := json.Marshal(snap.Signal)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	props := map[string]interface{}{
		"snapshot_id":  snap.ID,
		"subject_id":   snap.SubjectID,
		"signal_json":  string(signalJSON),
		"calc_version": snap.Metadata.CalcVersion,
		"quality_flag": snap.Metadata.QualityFlag,
		"created_at":   snap.CreatedAt.UnixMilli(),
	}

	return g.execute(ctx, "write_signal_snapshot", func() error {
		_, err := g.client.Data().Creator().
			WithClassName(datatypes.ClassSignalSnapshot).
			WithProperties(props).
			Do(ctx)
		return err
	})
}

// WriteBlueprintSnapshot copies a blueprint snapshot into the graph and
// clears the is_latest flag on the predecessor. The graph's latest flag is
// advisory; the flat store's pointer is the source of truth.
func (g *GraphBackend) WriteBlueprintSnapshot(ctx context.Context, snap *datatypes.BlueprintSnapshot) error {
	traitsJSON, err := json.Marshal(snap.Traits)
	if err != nil {
		return fmt.Errorf("marshal traits: %w", err)
	}

	props := map[string]interface{}{
		"snapshot_id":  snap.ID,
		"subject_id":   snap.SubjectID,
		"source":       string(snap.Source),
		"traits_json":  string(traitsJSON),
		"previous_id":  snap.PreviousID,
		"derived_from": snap.DerivedFrom,
		"is_latest":    true,
		"timestamp":    snap.Timestamp.UnixMilli(),
	}

	if err := g.execute(ctx, "write_blueprint_snapshot", func() error {
		_, err := g.client.Data().Creator().
			WithClassName(datatypes.ClassBlueprintSnapshot).
			WithProperties(props).
			Do(ctx)
		return err
	}); err != nil {
		return err
	}

	if snap.PreviousID == "" {
		return nil
	}
	return g.clearLatestFlag(ctx, snap.SubjectID, snap.PreviousID)
}

// snapshotIDQueryResult mirrors the Get response for id-only snapshot
// queries.
type snapshotIDQueryResult struct {
	Get struct {
		BlueprintSnapshot []struct {
			Additional struct {
				ID string `json:"id"`
			} `json:"_additional"`
		} `json:"BlueprintSnapshot"`
	} `json:"Get"`
}

// snapshotSourceQueryResult mirrors the Get response for source-only
// snapshot queries.
type snapshotSourceQueryResult struct {
	Get struct {
		BlueprintSnapshot []struct {
			Source string `json:"source"`
		} `json:"BlueprintSnapshot"`
	} `json:"Get"`
}

func parseGraphQLData[T any](resp *models.GraphQLResponse) (*T, error) {
	var result T
	if resp == nil || resp.Data == nil {
		return &result, nil
	}
	jsonBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql response data: %w", err)
	}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil, fmt.Errorf("unmarshal graphql query result: %w", err)
	}
	return &result, nil
}

// clearLatestFlag demotes the predecessor snapshot's is_latest marker.
func (g *GraphBackend) clearLatestFlag(ctx context.Context, subjectID, previousID string) error {
	return g.execute(ctx, "clear_latest_flag", func() error {
		where := filters.Where().
			WithPath([]string{"snapshot_id"}).
			WithOperator(filters.Equal).
			WithValueText(previousID)

		resp, err := g.client.GraphQL().Get().
			WithClassName(datatypes.ClassBlueprintSnapshot).
			WithFields(graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}}).
			WithWhere(where).
			Do(ctx)
		if err != nil {
			return err
		}

		result, err := parseGraphQLData[snapshotIDQueryResult](resp)
		if err != nil {
			return err
		}

		for _, obj := range result.Get.BlueprintSnapshot {
			if err := g.client.Data().Updater().
				WithMerge().
				WithClassName(datatypes.ClassBlueprintSnapshot).
				WithID(obj.Additional.ID).
				WithProperties(map[string]interface{}{
					"is_latest": false,
				}).
				Do(ctx); err != nil {
				return fmt.Errorf("demote snapshot %s for subject %s: %w", previousID, subjectID, err)
			}
		}
		return nil
	})
}

// SubjectChainSummary is the graph-side aggregate view of one subject's
// snapshot chain, for the admin surface.
type SubjectChainSummary struct {
	SubjectID     string         `json:"subject_id"`
	SnapshotCount int            `json:"snapshot_count"`
	BySource      map[string]int `json:"by_source"`
}

// ChainSummary aggregates a subject's snapshots by source. Unlike writes,
// this read goes to the graph because it is an analytics view; callers
// must tolerate ErrGraphUnavailable.
func (g *GraphBackend) ChainSummary(ctx context.Context, subjectID string) (*SubjectChainSummary, error) {
	summary := &SubjectChainSummary{
		SubjectID: subjectID,
		BySource:  make(map[string]int),
	}

	err := g.execute(ctx, "chain_summary", func() error {
		where := filters.Where().
			WithPath([]string{"subject_id"}).
			WithOperator(filters.Equal).
			WithValueText(subjectID)

		resp, err := g.client.GraphQL().Get().
			WithClassName(datatypes.ClassBlueprintSnapshot).
			WithFields(graphql.Field{Name: "source"}).
			WithWhere(where).
			Do(ctx)
		if err != nil {
			return err
		}

		result, err := parseGraphQLData[snapshotSourceQueryResult](resp)
		if err != nil {
			return err
		}

		for _, obj := range result.Get.BlueprintSnapshot {
			summary.BySource[obj.Source]++
			summary.SnapshotCount++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}
