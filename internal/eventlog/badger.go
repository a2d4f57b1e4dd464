// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package eventlog

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"

	"github.com/tomtom215/trackrelay/internal/logging"
	"github.com/tomtom215/trackrelay/internal/models"
)

// Key layout. Device IDs never contain '/', so prefixes cannot collide.
//
//	ev/<deviceID>/<sec:8><nsec:4><seq:8>  -> JSON TelemetryEvent
//	dev/<deviceID>               -> empty (device index)
//	meta/seq                     -> badger sequence
var (
	eventPrefix  = []byte("ev/")
	devicePrefix = []byte("dev/")
	seqKey       = []byte("meta/seq")
)

// BadgerOptions configures the embedded log.
type BadgerOptions struct {
	// Path is the badger directory. Empty means in-memory (tests only).
	Path string

	// SyncWrites fsyncs every append.
	SyncWrites bool
}

// BadgerLog is the default embedded Store.
type BadgerLog struct {
	db     *badger.DB
	seq    *badger.Sequence
	closed atomic.Bool
	mu     sync.Mutex
}

// OpenBadger opens (or creates) the log at opts.Path.
func OpenBadger(opts BadgerOptions) (*BadgerLog, error) {
	var bopts badger.Options
	if opts.Path == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path)
		bopts.SyncWrites = opts.SyncWrites
	}
	bopts.Compression = options.Snappy
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger event log: %w", err)
	}

	seq, err := db.GetSequence(seqKey, 256)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("event log sequence: %w", err)
	}

	logging.Info().
		Str("path", opts.Path).
		Bool("sync_writes", opts.SyncWrites).
		Msg("Badger event log opened")

	return &BadgerLog{db: db, seq: seq}, nil
}

// Name implements Log.
func (b *BadgerLog) Name() string { return BackendBadger }

// Append implements Log.
func (b *BadgerLog) Append(ctx context.Context, ev models.TelemetryEvent) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	n, err := b.seq.Next()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	key := eventKey(ev.DeviceID, ev.Timestamp, n)
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(deviceKey(ev.DeviceID), nil)
	})
	if err != nil {
		return fmt.Errorf("append %s: %w", ev.DeviceID, err)
	}
	return nil
}

// ListDeviceIDs implements Querier.
func (b *BadgerLog) ListDeviceIDs(ctx context.Context) ([]string, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	ids := []string{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = devicePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(devicePrefix); it.ValidForPrefix(devicePrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			ids = append(ids, string(it.Item().Key()[len(devicePrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return ids, nil
}

// History implements Querier. Badger keys sort by timestamp then sequence, so
// a reverse scan yields newest first.
func (b *BadgerLog) History(ctx context.Context, deviceID string, limit int) ([]models.TelemetryEvent, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	limit = clampLimit(limit, DefaultHistoryLimit)

	prefix := deviceEventPrefix(deviceID)
	events := make([]models.TelemetryEvent, 0, limit)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), bytes.Repeat([]byte{0xFF}, eventSuffixLen+1)...)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(events) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var ev models.TelemetryEvent
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			}); err != nil {
				return err
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", deviceID, err)
	}
	return events, nil
}

// RecentAnalytics implements Querier. The embedded log stores no summaries.
func (b *BadgerLog) RecentAnalytics(context.Context, int) ([]models.DailySummary, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	return []models.DailySummary{}, nil
}

// Ping reports whether the database is open.
func (b *BadgerLog) Ping(context.Context) error {
	if b.closed.Load() || b.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// RunGC reclaims value log space. Safe to call periodically.
func (b *BadgerLog) RunGC() error {
	if b.closed.Load() {
		return ErrClosed
	}
	err := b.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
		return nil
	}
	return err
}

// Close implements Log.
func (b *BadgerLog) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := b.seq.Release(); err != nil {
		logging.Warn().Err(err).Msg("Failed to release event log sequence")
	}
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close badger event log: %w", err)
	}
	logging.Info().Msg("Badger event log closed")
	return nil
}

func deviceKey(deviceID string) []byte {
	return append(append([]byte{}, devicePrefix...), deviceID...)
}

func deviceEventPrefix(deviceID string) []byte {
	k := make([]byte, 0, len(eventPrefix)+len(deviceID)+1)
	k = append(k, eventPrefix...)
	k = append(k, deviceID...)
	return append(k, '/')
}

const eventSuffixLen = 20

// eventKey orders by whole seconds, then nanoseconds, then sequence. Seconds
// cover every time.Time, unlike UnixNano. The sign bit is flipped so
// pre-epoch timestamps still sort first.
func eventKey(deviceID string, ts time.Time, seq uint64) []byte {
	k := deviceEventPrefix(deviceID)
	var suffix [eventSuffixLen]byte
	binary.BigEndian.PutUint64(suffix[:8], uint64(ts.Unix())^(1<<63))
	binary.BigEndian.PutUint32(suffix[8:12], uint32(ts.Nanosecond()))
	binary.BigEndian.PutUint64(suffix[12:], seq)
	return append(k, suffix[:]...)
}
