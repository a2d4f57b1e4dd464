// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/tomtom215/trackrelay/internal/logging"
	"github.com/tomtom215/trackrelay/internal/validation"
)

// deviceIDRule matches the relay's DeviceID validation.
const deviceIDRule = "required,max=128,deviceid"

// HostIDFunc returns a platform identifier for this machine.
type HostIDFunc func(ctx context.Context) (string, error)

// PlatformHostID reads the host UUID via gopsutil.
func PlatformHostID(ctx context.Context) (string, error) {
	return host.HostIDWithContext(ctx)
}

// LoadOrCreateDeviceID returns the device ID stored at path. On first run
// it derives one from hostID (falling back to a random UUID) and persists
// it, so the ID is stable across restarts. A stored ID the relay would
// reject is an error; the file is left untouched for the operator to fix.
func LoadOrCreateDeviceID(ctx context.Context, path string, hostID HostIDFunc) (string, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(data)); id != "" {
			if err := validateDeviceID(id); err != nil {
				return "", fmt.Errorf("device id in %s: %w", path, err)
			}
			return id, nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("read device id: %w", err)
	}

	id := ""
	if hostID != nil {
		if hid, err := hostID(ctx); err == nil {
			if hid = sanitizeDeviceID(hid); validateDeviceID(hid) == nil {
				id = hid
			}
		} else {
			logging.Debug().Err(err).Msg("host id unavailable, using random device id")
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	if err := writeFileAtomic(path, []byte(id+"\n")); err != nil {
		return "", fmt.Errorf("write device id: %w", err)
	}
	logging.Info().Str("device_id", id).Str("path", path).Msg("created device id")
	return id, nil
}

func validateDeviceID(id string) error {
	if err := validation.GetValidator().Var(id, deviceIDRule); err != nil {
		return fmt.Errorf("invalid device id %q: must be 1-128 letters, digits, '.', '_' or '-'", id)
	}
	return nil
}

// writeFileAtomic writes data to a temp file beside path and renames it
// into place, so a crash never leaves a truncated ID behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// sanitizeDeviceID lowercases and drops characters the relay rejects in
// room names.
func sanitizeDeviceID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return -1
	}, s)
}
