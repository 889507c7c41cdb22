// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/originseedlabs/originseed/services/blueprint/datatypes"
)

// DefaultSignalTimeout bounds one chart-service call.
const DefaultSignalTimeout = 15 * time.Second

// ErrSignalSourceUnavailable is returned when the external calculator
// cannot produce a signal. Unlike storage degradation this is fatal to
// generation: there is nothing to translate without a signal.
var ErrSignalSourceUnavailable = errors.New("signal source unavailable")

// SignalSource computes a positional signal from birth coordinates. The
// production implementation calls the external chart calculator; tests
// substitute a canned source.
type SignalSource interface {
	Compute(ctx context.Context, birth datatypes.BirthData) (*datatypes.PositionalSignal, datatypes.SignalMetadata, error)
}

// -----------------------------------------------------------------------------
// Chart Service Client
// -----------------------------------------------------------------------------

// ChartClient is the HTTP SignalSource backed by the chart calculator
// service.
//
// Thread Safety: safe for concurrent use.
type ChartClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewChartClient creates a client for the calculator at baseURL.
func NewChartClient(baseURL string) *ChartClient {
	return &ChartClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultSignalTimeout,
		},
	}
}

// WithTimeout sets a custom timeout for chart requests.
func (c *ChartClient) WithTimeout(timeout time.Duration) *ChartClient {
	c.httpClient.Timeout = timeout
	return c
}

// chartRequest is the request body for the /v1/chart endpoint.
type chartRequest struct {
	Date      string  `json:"date"`
	Time      string  `json:"time,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone,omitempty"`
}

// chartResponse is the calculator's response shape.
type chartResponse struct {
	Signal      datatypes.PositionalSignal `json:"signal"`
	CalcVersion string                     `json:"calc_version"`
	QualityFlag string                     `json:"quality_flag"`
}

// Compute calls the calculator once. No retry: generation is an
// interactive flow and the caller surfaces the failure immediately.
func (c *ChartClient) Compute(ctx context.Context, birth datatypes.BirthData) (*datatypes.PositionalSignal, datatypes.SignalMetadata, error) {
	body, err := json.Marshal(chartRequest{
		Date:      birth.Date,
		Time:      birth.Time,
		Latitude:  birth.Latitude,
		Longitude: birth.Longitude,
		Timezone:  birth.Timezone,
	})
	if err != nil {
		return nil, datatypes.SignalMetadata{}, fmt.Errorf("marshal chart request: %w", err)
	}

	url := c.baseURL + "/v1/chart"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, datatypes.SignalMetadata{}, fmt.Errorf("create chart request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, datatypes.SignalMetadata{}, fmt.Errorf("%w: %v", ErrSignalSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, datatypes.SignalMetadata{}, fmt.Errorf("%w: status %d: %s",
			ErrSignalSourceUnavailable, resp.StatusCode, payload)
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, datatypes.SignalMetadata{}, fmt.Errorf("decode chart response: %w", err)
	}
	if len(parsed.Signal.Bodies) == 0 {
		return nil, datatypes.SignalMetadata{}, fmt.Errorf("%w: calculator returned no bodies", ErrSignalSourceUnavailable)
	}

	meta := datatypes.SignalMetadata{
		CalcVersion:      parsed.CalcVersion,
		CoordinateSource: "user_entry",
		QualityFlag:      parsed.QualityFlag,
	}
	if birth.Time == "" && meta.QualityFlag == "" {
		meta.QualityFlag = "no_birth_time"
	}
	return &parsed.Signal, meta, nil
}
