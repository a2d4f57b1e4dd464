// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package validation

import (
	"math"
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 == nil {
		t.Fatal("GetValidator() should not return nil")
	}
	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
}

type probe struct {
	DeviceID string  `json:"deviceId" validate:"required,max=16,deviceid"`
	Lat      float64 `json:"lat" validate:"finite,latitude"`
	Status   string  `json:"status" validate:"omitempty,oneof=active inactive"`
	Limit    int     `json:"limit" validate:"min=1,max=1000"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     probe
		wantField string
		wantTag   string
	}{
		{name: "valid", input: probe{DeviceID: "phone-1", Lat: 51.5, Limit: 10}},
		{name: "missing device", input: probe{Lat: 1, Limit: 1}, wantField: "deviceId", wantTag: "required"},
		{name: "colon in device", input: probe{DeviceID: "device:x", Limit: 1}, wantField: "deviceId", wantTag: "deviceid"},
		{name: "too long", input: probe{DeviceID: strings.Repeat("a", 17), Limit: 1}, wantField: "deviceId", wantTag: "max"},
		{name: "NaN latitude", input: probe{DeviceID: "a", Lat: math.NaN(), Limit: 1}, wantField: "lat", wantTag: "finite"},
		{name: "latitude range", input: probe{DeviceID: "a", Lat: 91, Limit: 1}, wantField: "lat", wantTag: "latitude"},
		{name: "bad status", input: probe{DeviceID: "a", Status: "parked", Limit: 1}, wantField: "status", wantTag: "oneof"},
		{name: "limit zero", input: probe{DeviceID: "a", Limit: 0}, wantField: "limit", wantTag: "min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(&tt.input)
			if tt.wantField == "" {
				if verr != nil {
					t.Fatalf("Expected no error, got %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatalf("Expected error on %s, got nil", tt.wantField)
			}
			first := verr.Errors()[0]
			if first.Field() != tt.wantField {
				t.Errorf("Expected field %s, got %s", tt.wantField, first.Field())
			}
			if first.Tag() != tt.wantTag {
				t.Errorf("Expected tag %s, got %s", tt.wantTag, first.Tag())
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	verr := ValidateStruct(&probe{DeviceID: "", Lat: 95, Limit: 1})
	if verr == nil {
		t.Fatal("Expected validation error")
	}

	apiErr := verr.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Expected VALIDATION_ERROR, got %s", apiErr.Code)
	}
	fields, ok := apiErr.Details["fields"].([]string)
	if !ok || len(fields) != 2 {
		t.Fatalf("Expected two failing fields, got %v", apiErr.Details)
	}
	if !strings.Contains(apiErr.Message, "deviceId is required") {
		t.Errorf("Expected combined message, got %s", apiErr.Message)
	}
}

func TestToAPIError_Single(t *testing.T) {
	verr := ValidateStruct(&probe{DeviceID: "ok", Limit: 5000})
	if verr == nil {
		t.Fatal("Expected validation error")
	}

	apiErr := verr.ToAPIError()
	if apiErr.Message != "limit must be at most 1000" {
		t.Errorf("Unexpected message: %s", apiErr.Message)
	}
	if apiErr.Details["field"] != "limit" {
		t.Errorf("Expected field detail 'limit', got %v", apiErr.Details["field"])
	}
}
