// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package refresh

import (
	"context"
	"fmt"

	"github.com/tomtom215/transitpulse/internal/logging"
	"github.com/tomtom215/transitpulse/internal/metrics"
	"github.com/tomtom215/transitpulse/internal/models"
)

// Persisted is the durable copy of published layers.
type Persisted interface {
	LayerVersions(ctx context.Context, layer models.Layer) ([]uint64, error)
	LoadAnalytics(ctx context.Context) ([]models.AnalyticsRecord, uint64, error)
}

// Restore continues version numbering past every persisted layer table and
// reloads the Analytics history, which is the only layer that cannot be
// rebuilt from the raw log alone. The other layers are rebuilt by the next
// refresh.
func (o *Orchestrator) Restore(ctx context.Context, src Persisted) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	for _, layer := range models.MaterializedLayers {
		versions, err := src.LayerVersions(ctx, layer)
		if err != nil {
			return fmt.Errorf("list %s versions: %w", layer, err)
		}
		if len(versions) > 0 {
			o.layers.advance(layer, versions[len(versions)-1])
		}
	}

	rows, version, err := src.LoadAnalytics(ctx)
	if err != nil {
		return fmt.Errorf("load analytics: %w", err)
	}
	if version == 0 {
		logging.Ctx(ctx).Info().Msg("No persisted analytics to restore")
		return nil
	}
	o.layers.Analytics.Restore(version, rows, o.opts.Now())
	metrics.SetLayerVersion(string(models.LayerAnalytics), version, len(rows))
	logging.Ctx(ctx).Info().
		Uint64("version", version).
		Int("rows", len(rows)).
		Msg("Analytics history restored")
	return nil
}
