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
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/originseedlabs/originseed/services/blueprint/datatypes"
	"github.com/originseedlabs/originseed/services/blueprint/profile"
)

func SubmitFeedback(svc *profile.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := profileTracer.Start(c.Request.Context(), "SubmitFeedback")
		defer span.End()

		subjectID := c.Param("subjectId")
		layerID, err := strconv.Atoi(c.Param("layerId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "layerId must be an integer"})
			return
		}
		span.SetAttributes(
			attribute.String("subject_id", subjectID),
			attribute.Int("layer_id", layerID))

		var fb datatypes.Feedback
		if err := c.BindJSON(&fb); err != nil {
			span.RecordError(err)
			slog.Error("Failed to bind feedback request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		span.SetAttributes(attribute.String("kind", string(fb.Kind)))

		result, err := svc.SubmitFeedback(ctx, subjectID, layerID, &fb)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			writeError(c, err)
			return
		}
		slog.Info("feedback applied",
			"subjectId", subjectID, "layerId", layerID,
			"kind", fb.Kind, "direction", result.Direction)
		c.JSON(http.StatusOK, result)
	}
}

func NextQuestion(svc *profile.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := profileTracer.Start(c.Request.Context(), "NextQuestion")
		defer span.End()

		subjectID := c.Param("subjectId")
		span.SetAttributes(attribute.String("subject_id", subjectID))

		q, err := svc.NextQuestion(ctx, subjectID)
		if err != nil {
			span.RecordError(err)
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, q)
	}
}
