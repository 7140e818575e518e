// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

// Package retention bounds the Analytics layer to a trailing window.
//
// Archive trims the current Analytics snapshot by time bucket and publishes
// the survivors as a new version, through the same sink-then-swap path the
// refresh orchestrator uses, so readers never see a partially trimmed
// layer. The raw observation log is kept in full for model retraining;
// Archive verifies that its row count below the run's high-water mark is
// unchanged and fails with ErrRawLogMutated otherwise.
package retention
