// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package models

import "time"

// Prediction is one forecast row. Rows of one batch share BatchCreatedAt.
type Prediction struct {
	RegionID              string    `json:"region_id"`
	RouteID               string    `json:"route_id" validate:"required"`
	DirectionID           int       `json:"direction_id" validate:"oneof=0 1"`
	StopID                string    `json:"stop_id" validate:"required"`
	BatchCreatedAt        time.Time `json:"batch_created_at"`
	TargetTime            time.Time `json:"target_time" validate:"required"`
	HorizonOffset         int       `json:"horizon_offset" validate:"min=1,max=3"`
	PredictedDelaySeconds float64   `json:"predicted_delay_seconds"`
	ModelVersion          string    `json:"model_version" validate:"required,max=64"`
	Confidence            *float64  `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Key returns the prediction series key.
func (p *Prediction) Key() PredictionKey {
	return PredictionKey{RegionID: p.RegionID, RouteID: p.RouteID, DirectionID: p.DirectionID, StopID: p.StopID}
}

// PredictionKey identifies a forecast series.
type PredictionKey struct {
	RegionID    string `json:"region_id"`
	RouteID     string `json:"route_id"`
	DirectionID int    `json:"direction_id"`
	StopID      string `json:"stop_id"`
}

// HistoryRange bounds a prediction history read. Rows come oldest batch
// first, so Since plus Limit pages forward through a series.
type HistoryRange struct {
	// Since is inclusive on batch_created_at. Zero reads from the first batch.
	Since time.Time `json:"since,omitempty"`
	Limit int       `json:"limit,omitempty"`
}

// PredictionFilter narrows Latest queries. Empty fields match everything.
type PredictionFilter struct {
	RegionID string `json:"region_id,omitempty"`
	RouteID  string `json:"route_id,omitempty"`
	StopID   string `json:"stop_id,omitempty"`
}

// Matches reports whether p passes the filter.
func (f PredictionFilter) Matches(p *Prediction) bool {
	return (f.RegionID == "" || f.RegionID == p.RegionID) &&
		(f.RouteID == "" || f.RouteID == p.RouteID) &&
		(f.StopID == "" || f.StopID == p.StopID)
}

// PredictionBatch is the wire form of one forecasting run. A zero
// BatchCreatedAt is stamped by the store on append.
type PredictionBatch struct {
	BatchCreatedAt time.Time    `json:"batch_created_at"`
	Predictions    []Prediction `json:"predictions" validate:"required,min=1,max=100000,dive"`
}
