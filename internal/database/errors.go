// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package database

import (
	"database/sql"
	"errors"
	"io"

	"github.com/tomtom215/transitpulse/internal/logging"
)

// closeQuietly closes rows and statements on paths where the Close error
// carries nothing the caller has not already seen.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// rollback is deferred by every write transaction; it only acts when err
// (the enclosing function's named result) is set.
func rollback(tx *sql.Tx, err error) {
	if err == nil {
		return
	}
	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		logging.Error().
			Err(rbErr).
			AnErr("original_error", err).
			Msg("Transaction rollback failed")
	}
}
