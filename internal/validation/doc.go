// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

/*
Package validation provides struct validation using go-playground/validator v10.

A single validator instance is shared process-wide (it caches struct
metadata) and is created with WithRequiredStructEnabled.

# Custom Tags

	service_date   GTFS service date, YYYYMMDD, must parse as a calendar date
	layer          a refreshable layer name (base, enriched, analytics, ...)

# Usage

Raw observations arriving over NATS and prediction batches arriving over HTTP
are validated at the trust boundary; everything downstream assumes valid rows.

	if verr := validation.ValidateStruct(&batch); verr != nil {
	    apiErr := verr.ToAPIError()
	    respondError(w, http.StatusBadRequest, apiErr)
	    return
	}

Errors are translated to short field messages ("HorizonOffset must be at most
3") and folded into the VALIDATION_ERROR API envelope.
*/
package validation
