// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin handlers for the blueprint API.
// Each handler is a closure over the profile service so the route table
// stays declarative.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/originseedlabs/originseed/services/blueprint/datatypes"
	"github.com/originseedlabs/originseed/services/blueprint/profile"
	"github.com/originseedlabs/originseed/services/blueprint/store"
)

// HealthCheck reports liveness plus storage degradation. The flat backend
// is load-bearing, so the process is healthy whenever it is up; the graph
// backend only shifts the reported storage mode.
func HealthCheck(svc *profile.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		storage := "flat_and_graph"
		if !svc.GraphAvailable() {
			storage = "flat_only"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "storage": storage})
	}
}

// ChainSummary serves the graph-side per-subject analytics view. Returns
// 503 while the graph backend is degraded; the flat path cannot answer it.
func ChainSummary(svc *profile.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID := c.Param("subjectId")
		summary, err := svc.ChainSummary(c.Request.Context(), subjectID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// writeError maps domain errors onto HTTP statuses. Unknown errors stay
// opaque to the client.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, datatypes.ErrNoProfile),
		errors.Is(err, datatypes.ErrMissingSignal),
		errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, datatypes.ErrInvalidBirthData),
		errors.Is(err, datatypes.ErrInvalidFeedback),
		errors.Is(err, datatypes.ErrUnknownLayer):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, profile.ErrProfileExists),
		errors.Is(err, store.ErrSignalExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, profile.ErrSignalSourceUnavailable),
		errors.Is(err, store.ErrGraphUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
