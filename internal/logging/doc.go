// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

// Package logging provides the zerolog-based structured logger used across TransitPulse.
//
// A single global logger is configured once from main via Init and read
// through package-level helpers:
//
//	logging.Init(logging.Config{Level: "info", Format: "json", Timestamp: true})
//	logging.Info().Str("layer", "analytics").Int("rows", n).Msg("layer published")
//
// Context-aware logging adds correlation_id, request_id and run_id fields:
//
//	ctx = logging.ContextWithRunID(ctx, runID)
//	logging.Ctx(ctx).Warn().Err(err).Msg("sink publish failed")
//
// The SlogHandler adapter routes log/slog output (suture's event hook and
// watermill) into the same zerolog stream.
//
// # Environment
//
//	LOG_LEVEL   trace, debug, info, warn, error (default info)
//	LOG_FORMAT  json or console (default json)
//	LOG_CALLER  include caller file:line (default false)
//
// Always terminate an event with Msg or Send; an unterminated event is dropped.
package logging
