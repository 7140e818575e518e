// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/transitpulse/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed rule. Field is the JSON path of the value, for
// example "predictions[2].horizon_offset".
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

// RequestValidationError collects every failed rule of one ValidateStruct
// call.
type RequestValidationError struct {
	Fields []FieldError
}

func (ve *RequestValidationError) Error() string {
	if len(ve.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.Fields))
	for i := range ve.Fields {
		messages[i] = ve.Fields[i].Message
	}
	return strings.Join(messages, "; ")
}

// ToAPIError converts the failures to the API error envelope. Details always
// carry the full field list so clients can map errors back to rows.
func (ve *RequestValidationError) ToAPIError() *models.APIError {
	apiErr := &models.APIError{Code: "VALIDATION_ERROR", Message: "Validation failed"}
	if len(ve.Fields) == 0 {
		return apiErr
	}
	apiErr.Message = ve.Error()
	apiErr.Details = map[string]interface{}{"fields": ve.Fields}
	return apiErr
}

// GetValidator returns the process-wide validator. Field names in errors are
// taken from json tags.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)

		// Registration only fails on an empty tag or nil func.
		_ = validate.RegisterValidation("service_date", validateServiceDate)
		_ = validate.RegisterValidation("layer", validateLayer)
	})
	return validate
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

func validateServiceDate(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != len(models.ServiceDateLayout) {
		return false
	}
	_, err := time.Parse(models.ServiceDateLayout, s)
	return err == nil
}

func validateLayer(fl validator.FieldLevel) bool {
	return models.Layer(fl.Field().String()).Valid()
}

// ValidateStruct validates s and returns nil or every failed rule.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{Fields: []FieldError{{Field: "", Tag: "invalid", Message: err.Error()}}}
	}

	out := make([]FieldError, len(fieldErrs))
	for i, fe := range fieldErrs {
		path := fieldPath(fe.Namespace())
		out[i] = FieldError{
			Field:   path,
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Value:   fe.Value(),
			Message: message(path, fe),
		}
	}
	return &RequestValidationError{Fields: out}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

var messages = map[string]string{
	"required":     "%s is required",
	"service_date": "%s must be a service date in YYYYMMDD format",
	"layer":        "%s must be a known layer name",
	"latitude":     "%s must be a latitude between -90 and 90",
	"longitude":    "%s must be a longitude between -180 and 180",
}

var messagesWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be >= %s",
	"lte":   "%s must be <= %s",
	"gt":    "%s must be > %s",
	"lt":    "%s must be < %s",
	"len":   "%s must have length %s",
}

func message(field string, fe validator.FieldError) string {
	if tmpl, ok := messages[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field)
	}
	if tmpl, ok := messagesWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field, fe.Param())
	}

	unit := ""
	switch fe.Kind() {
	case reflect.String:
		unit = " characters"
	case reflect.Slice, reflect.Map:
		unit = " items"
	}
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, fe.Param(), unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, fe.Param(), unit)
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
