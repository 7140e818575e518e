// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

/*
Package ledger records the refresh state of every derived layer.

Each layer has exactly one entry, overwritten on every transition:

	idle -> in_progress -> success
	                    -> failed

Entries are stored in BadgerDB under "ledger:<layer>" as JSON. Every
transition is a read-modify-write inside one Badger transaction, so two
schedulers firing the same job cannot both move a layer to in_progress: the
loser either sees the winner's entry and gets ErrRefreshInProgress, or loses
the commit race and retries into the same result.

An in_progress entry older than Options.StuckAfter is treated as abandoned
(the process died mid-run) and a new run may take it over. Only the run that
began an entry may finish it; anything else gets ErrRunMismatch.

Transitions are mirrored to Prometheus and to any registered Observer, which
is how the DuckDB refresh_ledger table is kept current.
*/
package ledger
