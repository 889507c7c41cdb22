// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/originseedlabs/originseed/services/blueprint/handlers"
	"github.com/originseedlabs/originseed/services/blueprint/profile"
)

func SetupRoutes(router *gin.Engine, svc *profile.Service) {
	router.GET("/health", handlers.HealthCheck(svc))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/profiles", handlers.CreateProfile(svc))
		v1.GET("/snapshots/:snapshotId", handlers.GetSnapshot(svc))

		profiles := v1.Group("/profiles/:subjectId")
		{
			profiles.GET("", handlers.GetProfile(svc))
			profiles.GET("/history", handlers.GetHistory(svc))
			profiles.POST("/regenerate", handlers.RegenerateProfile(svc))
			profiles.POST("/resynthesize", handlers.ResynthesizeProfile(svc))
			profiles.POST("/layers/:layerId/feedback", handlers.SubmitFeedback(svc))
			profiles.GET("/questions/next", handlers.NextQuestion(svc))
		}
		// Graph administration routes
		graphAdmin := v1.Group("/graph")
		{
			graphAdmin.GET("/chains/:subjectId", handlers.ChainSummary(svc))
		}
	}
}
