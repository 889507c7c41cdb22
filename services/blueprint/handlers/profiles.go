// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/originseedlabs/originseed/services/blueprint/datatypes"
	"github.com/originseedlabs/originseed/services/blueprint/profile"
)

var profileTracer = otel.Tracer("originseed.blueprint.handlers")

// CreateProfileRequest is the body for foundational generation.
type CreateProfileRequest struct {
	SubjectID string              `json:"subject_id" binding:"required"`
	Birth     datatypes.BirthData `json:"birth" binding:"required"`
}

func CreateProfile(svc *profile.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := profileTracer.Start(c.Request.Context(), "CreateProfile")
		defer span.End()

		var request CreateProfileRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind profile creation request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		span.SetAttributes(attribute.String("subject_id", request.SubjectID))

		snap, err := svc.GenerateProfile(ctx, request.SubjectID, request.Birth)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, snap)
	}
}

func GetProfile(svc *profile.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := profileTracer.Start(c.Request.Context(), "GetProfile")
		defer span.End()

		subjectID := c.Param("subjectId")
		span.SetAttributes(attribute.String("subject_id", subjectID))

		snap, err := svc.GetProfile(ctx, subjectID)
		if err != nil {
			span.RecordError(err)
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

func GetHistory(svc *profile.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := profileTracer.Start(c.Request.Context(), "GetHistory")
		defer span.End()

		subjectID := c.Param("subjectId")
		depth := 0
		if raw := c.Query("depth"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "depth must be a non-negative integer"})
				return
			}
			depth = parsed
		}
		span.SetAttributes(
			attribute.String("subject_id", subjectID),
			attribute.Int("depth", depth))

		chain, err := svc.GetHistory(ctx, subjectID, depth)
		if err != nil && len(chain) == 0 {
			span.RecordError(err)
			writeError(c, err)
			return
		}
		// A broken chain still returns the reachable part; flag it for
		// the caller instead of hiding the snapshots we do have.
		response := gin.H{"subject_id": subjectID, "snapshots": chain}
		if err != nil {
			slog.Warn("history walk ended on broken link", "subjectId", subjectID, "error", err)
			response["truncated"] = true
		}
		c.JSON(http.StatusOK, response)
	}
}

func GetSnapshot(svc *profile.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := profileTracer.Start(c.Request.Context(), "GetSnapshot")
		defer span.End()

		snapshotID := c.Param("snapshotId")
		span.SetAttributes(attribute.String("snapshot_id", snapshotID))

		snap, err := svc.GetSnapshot(ctx, snapshotID)
		if err != nil {
			span.RecordError(err)
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

// RegenerateRequest carries fresh birth coordinates for a full rebuild.
type RegenerateRequest struct {
	Birth datatypes.BirthData `json:"birth" binding:"required"`
}

func RegenerateProfile(svc *profile.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := profileTracer.Start(c.Request.Context(), "RegenerateProfile")
		defer span.End()

		subjectID := c.Param("subjectId")
		span.SetAttributes(attribute.String("subject_id", subjectID))

		var request RegenerateRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			slog.Error("Failed to bind regeneration request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		snap, err := svc.Regenerate(ctx, subjectID, request.Birth)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			writeError(c, err)
			return
		}
		slog.Info("profile regenerated", "subjectId", subjectID, "snapshotId", snap.ID)
		c.JSON(http.StatusCreated, snap)
	}
}

func ResynthesizeProfile(svc *profile.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := profileTracer.Start(c.Request.Context(), "ResynthesizeProfile")
		defer span.End()

		subjectID := c.Param("subjectId")
		span.SetAttributes(attribute.String("subject_id", subjectID))

		snap, err := svc.Resynthesize(ctx, subjectID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, snap)
	}
}
