// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// Class names in the graph backend.
const (
	ClassSignalSnapshot    = "SignalSnapshot"
	ClassBlueprintSnapshot = "BlueprintSnapshot"
)

func GetSignalSnapshotSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:               ClassSignalSnapshot,
		Description:         "Write-once capture of a subject's positional signal.",
		Vectorizer:          "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{IndexTimestamps: true},
		Properties: []*models.Property{
			{
				Name:            "snapshot_id",
				DataType:        []string{"text"},
				Description:     "Unique id of the capture.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "subject_id",
				DataType:        []string{"text"},
				Description:     "Subject owning the capture.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "signal_json",
				DataType:    []string{"text"},
				Description: "Full positional signal serialized as JSON.",
			},
			{
				Name:            "calc_version",
				DataType:        []string{"text"},
				Description:     "Version tag reported by the calculator service.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "quality_flag",
				DataType:        []string{"text"},
				Description:     "Degraded-capture marker (e.g. 'no_birth_time').",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds of the capture.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func GetBlueprintSnapshotSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:               ClassBlueprintSnapshot,
		Description:         "One immutable state of a subject's 15-layer trait profile.",
		Vectorizer:          "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{IndexTimestamps: true},
		Properties: []*models.Property{
			{
				Name:            "snapshot_id",
				DataType:        []string{"text"},
				Description:     "Unique id of the snapshot.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "subject_id",
				DataType:        []string{"text"},
				Description:     "Subject owning the chain.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Event that produced the snapshot (foundational, recalibration, ...).",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "traits_json",
				DataType:    []string{"text"},
				Description: "All fifteen trait scores serialized as JSON.",
			},
			{
				Name:            "previous_id",
				DataType:        []string{"text"},
				Description:     "Backward link to the prior latest snapshot.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "derived_from",
				DataType:        []string{"text"},
				Description:     "SignalSnapshot id for foundational and regeneration snapshots.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "is_latest",
				DataType:        []string{"boolean"},
				Description:     "True on exactly one snapshot per subject.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "timestamp",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds of the write.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureWeaviateSchema creates any missing blueprint classes. Unlike schema
// setup in services that require the graph backend, a failure here is
// returned so the store can start degraded instead of crashing.
func EnsureWeaviateSchema(ctx context.Context, client *weaviate.Client) error {
	schemaGetters := []func() *models.Class{
		GetSignalSnapshotSchema,
		GetBlueprintSnapshotSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()

		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
		if err == nil {
			slog.Debug("schema already exists", "class", class.Class)
			continue
		}

		slog.Info("schema not found, creating it", "class", class.Class)
		if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return fmt.Errorf("create schema for class %s: %w", class.Class, err)
		}
	}
	return nil
}
