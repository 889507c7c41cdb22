// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "errors"

// Shared error taxonomy. Only ErrMissingSignal and ErrUnknownLayer are ever
// surfaced to callers; degraded-backend and enhancement failures are
// recovered locally and logged, never returned.
var (
	// ErrMissingSignal indicates no signal snapshot exists for the subject.
	// Fatal to translation and recalibration.
	ErrMissingSignal = errors.New("no signal snapshot for subject")

	// ErrNoProfile indicates the subject has no blueprint chain yet.
	ErrNoProfile = errors.New("no blueprint profile for subject")

	// ErrUnknownLayer indicates a layer id outside 1..15.
	ErrUnknownLayer = errors.New("layer id outside 1..15")

	// ErrInvalidBirthData indicates birth coordinates that fail validation
	// before they ever reach the calculator.
	ErrInvalidBirthData = errors.New("invalid birth data")
)
