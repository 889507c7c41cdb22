// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package profile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/originseedlabs/originseed/services/blueprint/datatypes"
)

func chartServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestChartClient_Compute(t *testing.T) {
	var gotBody chartRequest
	srv := chartServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chart", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(chartResponse{
			Signal: datatypes.PositionalSignal{
				Bodies: []datatypes.Body{{Name: "sun", Sign: "leo", Longitude: 122.4, House: 10}},
			},
			CalcVersion: "calc-2.1",
		})
	})

	client := NewChartClient(srv.URL)
	signal, meta, err := client.Compute(context.Background(), testBirth())
	require.NoError(t, err)

	assert.Equal(t, "1990-04-02", gotBody.Date)
	assert.Equal(t, "14:30", gotBody.Time)
	require.Len(t, signal.Bodies, 1)
	assert.Equal(t, "leo", signal.Bodies[0].Sign)
	assert.Equal(t, "calc-2.1", meta.CalcVersion)
	assert.Equal(t, "user_entry", meta.CoordinateSource)
	assert.Empty(t, meta.QualityFlag)
}

func TestChartClient_MissingBirthTimeSetsQualityFlag(t *testing.T) {
	srv := chartServer(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(chartResponse{
			Signal: datatypes.PositionalSignal{
				Bodies: []datatypes.Body{{Name: "sun", Sign: "leo", Longitude: 122.4}},
			},
		})
	})

	birth := testBirth()
	birth.Time = ""
	_, meta, err := NewChartClient(srv.URL).Compute(context.Background(), birth)
	require.NoError(t, err)
	assert.Equal(t, "no_birth_time", meta.QualityFlag)
}

func TestChartClient_CalculatorFlagWins(t *testing.T) {
	srv := chartServer(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(chartResponse{
			Signal: datatypes.PositionalSignal{
				Bodies: []datatypes.Body{{Name: "sun", Sign: "leo", Longitude: 122.4}},
			},
			QualityFlag: "approximate_location",
		})
	})

	birth := testBirth()
	birth.Time = ""
	_, meta, err := NewChartClient(srv.URL).Compute(context.Background(), birth)
	require.NoError(t, err)
	assert.Equal(t, "approximate_location", meta.QualityFlag)
}

func TestChartClient_Non200IsUnavailable(t *testing.T) {
	srv := chartServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "ephemeris offline", http.StatusServiceUnavailable)
	})

	_, _, err := NewChartClient(srv.URL).Compute(context.Background(), testBirth())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignalSourceUnavailable)
	assert.Contains(t, err.Error(), "ephemeris offline")
}

func TestChartClient_EmptyBodiesIsUnavailable(t *testing.T) {
	srv := chartServer(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(chartResponse{})
	})

	_, _, err := NewChartClient(srv.URL).Compute(context.Background(), testBirth())
	assert.ErrorIs(t, err, ErrSignalSourceUnavailable)
}

func TestChartClient_ConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, _, err := NewChartClient(srv.URL).Compute(context.Background(), testBirth())
	assert.ErrorIs(t, err, ErrSignalSourceUnavailable)
}

func TestChartClient_ContextCancellation(t *testing.T) {
	srv := chartServer(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(chartResponse{})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := NewChartClient(srv.URL).Compute(ctx, testBirth())
	assert.ErrorIs(t, err, ErrSignalSourceUnavailable)
}
