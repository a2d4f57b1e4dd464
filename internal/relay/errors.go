// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package relay

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Only validation and persistence failures ever
// leave Ingest.
var (
	ErrValidation  = errors.New("invalid telemetry")
	ErrPersistence = errors.New("event log append failed")
	ErrCache       = errors.New("snapshot write failed")
	ErrDelivery    = errors.New("broadcast delivery failed")
)

// ValidationError rejects an event before any side effect.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrValidation, e.Err)
}

func (e *ValidationError) Unwrap() []error { return []error{ErrValidation, e.Err} }

// PersistenceError means the durable log did not take the event. Nothing
// was cached or broadcast.
type PersistenceError struct {
	DeviceID string
	Backend  string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s (%s, device %s): %v", ErrPersistence, e.Backend, e.DeviceID, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// CacheError is logged and counted, never returned from Ingest.
type CacheError struct {
	DeviceID string
	Err      error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("%s (device %s): %v", ErrCache, e.DeviceID, e.Err)
}

func (e *CacheError) Unwrap() []error { return []error{ErrCache, e.Err} }

// DeliveryError summarizes members of a room that missed a broadcast.
// Logged only.
type DeliveryError struct {
	Room    string
	Dropped int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: %d member(s) of %s", ErrDelivery, e.Dropped, e.Room)
}

func (e *DeliveryError) Unwrap() error { return ErrDelivery }
