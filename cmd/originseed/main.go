// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/originseedlabs/originseed/pkg/logging"
	"github.com/originseedlabs/originseed/services/blueprint/lexicon"
	"github.com/originseedlabs/originseed/services/blueprint/narrative"
	"github.com/originseedlabs/originseed/services/blueprint/observability"
	"github.com/originseedlabs/originseed/services/blueprint/profile"
	"github.com/originseedlabs/originseed/services/blueprint/routes"
	"github.com/originseedlabs/originseed/services/blueprint/store"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "originseed-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("blueprint-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	port := os.Getenv("BLUEPRINT_PORT")
	if port == "" {
		port = "12310"
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: "blueprint",
		LogDir:  os.Getenv("LOG_DIR"),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	// --- Flat store (load-bearing, startup fails without it) ---
	dataDir := os.Getenv("BLUEPRINT_DATA_DIR")
	if dataDir == "" {
		dataDir = "/var/lib/originseed/blueprint"
		slog.Warn("BLUEPRINT_DATA_DIR not set, defaulting", "path", dataDir)
	}
	flat, err := store.OpenFlat(store.FlatConfig{Path: dataDir, Logger: logger.Slog()})
	if err != nil {
		log.Fatalf("FATAL: could not open the flat store at %s: %v", dataDir, err)
	}

	// --- Graph backend (best-effort, absent URL means flat-only mode) ---
	var graph *store.GraphBackend
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	if weaviateURL != "" && strings.Contains(weaviateURL, "http") {
		graph, err = store.NewGraphBackend(store.GraphConfig{URL: weaviateURL, Logger: logger.Slog()})
		if err != nil {
			slog.Error("Failed to create the graph backend, continuing flat-only", "error", err)
			graph = nil
		}
	} else {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Running in flat-only mode.")
	}

	snapshots := store.NewSnapshotStore(flat, graph, logger.Slog())
	defer snapshots.Close()

	// --- Signal source ---
	chartURL := os.Getenv("CHART_SERVICE_URL")
	if chartURL == "" {
		log.Fatalf("FATAL: CHART_SERVICE_URL is not set; profiles cannot be generated without it")
	}
	chart := profile.NewChartClient(chartURL)

	// --- Narrative engine, optional external enhancement ---
	lex := lexicon.MustLoad()
	var enhancer *narrative.Enhancer
	if os.Getenv("NARRATIVE_BACKEND") == "openai" {
		gen, err := narrative.NewOpenAIGenerator()
		if err != nil {
			slog.Warn("External narrative backend unavailable, using rule-based synthesis only",
				"error", err)
		} else {
			enhancer = narrative.NewEnhancer(gen, narrative.EnhancerConfig{Logger: logger.Slog()})
			slog.Info("Using the OpenAI narrative backend")
		}
	}
	engine := narrative.NewEngine(lex, enhancer)

	svc := profile.NewService(snapshots, chart, lex, engine, logger.Slog())

	router := gin.Default()
	router.Use(otelgin.Middleware("blueprint-service"))
	routes.SetupRoutes(router, svc)

	log.Println("Starting the blueprint server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
