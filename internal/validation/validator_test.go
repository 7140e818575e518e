// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/transitpulse/internal/models"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
	if v1 == nil {
		t.Error("GetValidator() should not return nil")
	}
}

func validObservation() models.RawObservation {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	return models.RawObservation{
		TripID:              "T1",
		StopSequence:        3,
		ServiceDate:         "20260302",
		StopID:              "S1",
		DirectionID:         1,
		ObservedArrivalTime: now,
		FeedTimestamp:       now,
	}
}

func TestValidateStruct_Observation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.RawObservation)
		wantTag string
	}{
		{"valid", func(*models.RawObservation) {}, ""},
		{"missing trip", func(o *models.RawObservation) { o.TripID = "" }, "required"},
		{"bad service date", func(o *models.RawObservation) { o.ServiceDate = "20261340" }, "service_date"},
		{"short service date", func(o *models.RawObservation) { o.ServiceDate = "2026031" }, "service_date"},
		{"negative sequence", func(o *models.RawObservation) { o.StopSequence = -1 }, "gte"},
		{"bad direction", func(o *models.RawObservation) { o.DirectionID = 2 }, "oneof"},
		{"missing feed timestamp", func(o *models.RawObservation) { o.FeedTimestamp = time.Time{} }, "required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validObservation()
			tt.mutate(&o)
			err := ValidateStruct(&o)
			if tt.wantTag == "" {
				if err != nil {
					t.Fatalf("ValidateStruct() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			if got := err.Fields[0].Tag; got != tt.wantTag {
				t.Errorf("tag = %q, want %q", got, tt.wantTag)
			}
		})
	}
}

func TestValidateStruct_PredictionBatch(t *testing.T) {
	conf := 1.5
	batch := models.PredictionBatch{
		Predictions: []models.Prediction{{
			RouteID:       "R1",
			StopID:        "S1",
			TargetTime:    time.Now(),
			HorizonOffset: 4,
			ModelVersion:  "lstm-v3",
			Confidence:    &conf,
		}},
	}

	err := ValidateStruct(&batch)
	if err == nil {
		t.Fatal("ValidateStruct() = nil, want errors")
	}
	if len(err.Fields) != 2 {
		t.Fatalf("errors = %+v, want horizon and confidence", err.Fields)
	}
	if err.Fields[0].Field != "predictions[0].horizon_offset" {
		t.Errorf("field path = %q", err.Fields[0].Field)
	}

	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "predictions[0].horizon_offset must be at most 3") {
		t.Errorf("message = %q", apiErr.Message)
	}
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Errorf("details = %v, want fields", apiErr.Details)
	}

	empty := models.PredictionBatch{}
	if err := ValidateStruct(&empty); err == nil {
		t.Error("empty batch passed validation")
	}
}

func TestLayerTag(t *testing.T) {
	type req struct {
		Layer string `validate:"required,layer"`
	}
	if err := ValidateStruct(&req{Layer: "rollup_daily"}); err != nil {
		t.Errorf("valid layer rejected: %v", err)
	}
	err := ValidateStruct(&req{Layer: "bogus"})
	if err == nil {
		t.Fatal("bogus layer accepted")
	}
	if msg := err.ToAPIError().Message; msg != "Layer must be a known layer name" {
		t.Errorf("message = %q", msg)
	}
}

func TestRequestValidationError_Empty(t *testing.T) {
	ve := &RequestValidationError{}
	if ve.Error() != "validation failed" {
		t.Errorf("Error() = %q", ve.Error())
	}
	if ve.ToAPIError().Message != "Validation failed" {
		t.Errorf("ToAPIError() = %+v", ve.ToAPIError())
	}
}
