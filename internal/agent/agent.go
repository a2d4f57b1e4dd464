// Trackrelay - Live Device Telemetry Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackrelay

package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"

	"github.com/tomtom215/trackrelay/internal/logging"
	"github.com/tomtom215/trackrelay/internal/metrics"
	"github.com/tomtom215/trackrelay/internal/models"
)

// Tracking states.
const (
	StateUnauthorized         = "unauthorized"
	StateAuthorizationPending = "authorization_pending"
	StateIdle                 = "idle"
	StateTracking             = "tracking"
)

// Transition events. Names differ from state names so fsm callbacks
// keyed by name are unambiguous.
const (
	EventRequestPermission = "request_permission"
	EventGrant             = "grant"
	EventDeny              = "deny"
	EventRevoke            = "revoke"
	EventStart             = "start"
	EventStop              = "stop"
)

// States lists every tracking state, for metrics.
var States = []string{StateUnauthorized, StateAuthorizationPending, StateIdle, StateTracking}

// Defaults for Options.
const (
	DefaultDistanceFilterMeters = 10.0
	DefaultQueueSize            = 16
)

// Drop reasons reported in metrics and Stats.
const (
	DropDisconnected = "disconnected"
	DropBackpressure = "backpressure"
	DropEmitError    = "emit_error"
)

// Options tunes an Agent.
type Options struct {
	// DistanceFilterMeters skips fixes closer than this to the last emitted
	// fix. Zero disables the filter.
	DistanceFilterMeters float64

	// QueueSize bounds fixes waiting to be emitted. When full, the newest
	// fix is dropped.
	QueueSize int

	Now func() time.Time
}

// Stats counts what the agent did with captured fixes.
type Stats struct {
	Emitted      uint64
	Filtered     uint64
	Disconnected uint64
	Backpressure uint64
	EmitErrors   uint64
}

// Agent is the device-side tracking state machine. It decides when fixes
// are captured and pushes them to the relay over its Transport.
//
// All transitions are serialized by mu. The fsm is never re-entered from
// its own callbacks.
type Agent struct {
	deviceID  string
	perms     Permissions
	location  LocationSource
	battery   BatteryReader
	transport Transport
	opts      Options

	mu  sync.Mutex
	fsm *fsm.FSM

	state atomic.Value // string, mirrors fsm.Current for lock-free reads

	// announce is set while tracking so every (re)connect re-joins the
	// device room.
	announce atomic.Bool

	captureCancel context.CancelFunc
	captureDone   chan struct{}

	emitted      atomic.Uint64
	filtered     atomic.Uint64
	disconnected atomic.Uint64
	backpressure atomic.Uint64
	emitErrors   atomic.Uint64
}

// New creates an agent for deviceID. It starts Idle when the platform
// already reports access, Unauthorized otherwise.
func New(deviceID string, perms Permissions, location LocationSource, battery BatteryReader, transport Transport, opts Options) *Agent {
	if opts.DistanceFilterMeters < 0 {
		opts.DistanceFilterMeters = 0
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	a := &Agent{
		deviceID:  deviceID,
		perms:     perms,
		location:  location,
		battery:   battery,
		transport: transport,
		opts:      opts,
	}

	initial := StateUnauthorized
	if perms.Status() == AuthorizationGranted {
		initial = StateIdle
	}

	a.fsm = fsm.NewFSM(
		initial,
		fsm.Events{
			{Name: EventRequestPermission, Src: []string{StateUnauthorized}, Dst: StateAuthorizationPending},
			{Name: EventGrant, Src: []string{StateUnauthorized, StateAuthorizationPending}, Dst: StateIdle},
			{Name: EventDeny, Src: []string{StateAuthorizationPending}, Dst: StateUnauthorized},
			{Name: EventRevoke, Src: []string{StateIdle, StateTracking}, Dst: StateUnauthorized},
			{Name: EventStart, Src: []string{StateIdle}, Dst: StateTracking},
			{Name: EventStop, Src: []string{StateTracking}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"before_" + EventStart:  wrapEvent(a.beginTracking),
			"leave_" + StateTracking: wrapEvent(a.endTracking),
			"enter_state":            a.onEnterState,
		},
	)
	a.setState(initial)

	transport.OnConnect(a.onConnect)
	return a
}

// wrapEvent adapts an error-returning step to an fsm callback; an error
// cancels the transition and is returned from fsm.Event.
func wrapEvent(fn func(ctx context.Context, e *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, e *fsm.Event) {
		if err := fn(ctx, e); err != nil {
			e.Cancel(err)
		}
	}
}

// DeviceID returns the identifier this agent reports as.
func (a *Agent) DeviceID() string {
	return a.deviceID
}

// State returns the current tracking state.
func (a *Agent) State() string {
	return a.state.Load().(string)
}

// Stats returns fix counters since creation.
func (a *Agent) Stats() Stats {
	return Stats{
		Emitted:      a.emitted.Load(),
		Filtered:     a.filtered.Load(),
		Disconnected: a.disconnected.Load(),
		Backpressure: a.backpressure.Load(),
		EmitErrors:   a.emitErrors.Load(),
	}
}

// RequestTrackingStart asks to begin tracking. From Unauthorized it
// requests permission and applies the answer; from Idle it starts
// immediately. Other states are left unchanged.
func (a *Agent) RequestTrackingStart(ctx context.Context) error {
	a.mu.Lock()
	switch a.fsm.Current() {
	case StateUnauthorized:
		err := a.fire(ctx, EventRequestPermission)
		a.mu.Unlock()
		if err != nil {
			return err
		}

		granted, err := a.perms.Request(ctx)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("permission request failed, treating as denied")
			granted = false
		}

		a.mu.Lock()
		defer a.mu.Unlock()
		// A notification may have settled the prompt already. The answer
		// only counts while the agent is still waiting for it.
		if state := a.fsm.Current(); state != StateAuthorizationPending {
			logging.Ctx(ctx).Debug().
				Str("device_id", a.deviceID).
				Str("state", state).
				Bool("granted", granted).
				Msg("dropping stale permission answer")
			return nil
		}
		return a.applyAuthorization(ctx, granted)

	case StateIdle:
		defer a.mu.Unlock()
		return a.fire(ctx, EventStart)

	default:
		a.mu.Unlock()
		return nil
	}
}

// RequestTrackingStop stops capture and closes the connection. It only
// acts in Tracking.
func (a *Agent) RequestTrackingStop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fsm.Current() != StateTracking {
		return nil
	}
	return a.fire(ctx, EventStop)
}

// AuthorizationChanged applies a platform authorization notification. A
// grant while not yet tracking starts tracking; a denial while pending or
// a revocation while authorized returns to Unauthorized.
func (a *Agent) AuthorizationChanged(ctx context.Context, granted bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applyAuthorization(ctx, granted)
}

// applyAuthorization runs the authorization transitions. Callers hold mu.
func (a *Agent) applyAuthorization(ctx context.Context, granted bool) error {
	current := a.fsm.Current()
	if granted {
		switch current {
		case StateUnauthorized, StateAuthorizationPending:
			if err := a.fire(ctx, EventGrant); err != nil {
				return err
			}
		case StateIdle:
		default:
			return nil
		}
		return a.fire(ctx, EventStart)
	}

	switch current {
	case StateAuthorizationPending:
		logging.Ctx(ctx).Info().Str("device_id", a.deviceID).Msg("location authorization denied")
		return a.fire(ctx, EventDeny)
	case StateIdle, StateTracking:
		logging.Ctx(ctx).Info().Str("device_id", a.deviceID).Msg("location authorization revoked")
		return a.fire(ctx, EventRevoke)
	}
	return nil
}

// Close stops tracking if active. The agent is unusable afterwards.
func (a *Agent) Close(ctx context.Context) error {
	return a.RequestTrackingStop(ctx)
}

// fire runs one transition. Callers hold mu. A canceled transition
// returns the error that canceled it.
func (a *Agent) fire(ctx context.Context, event string) error {
	err := a.fsm.Event(ctx, event)
	if err == nil {
		return nil
	}

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) && noTransition.Err == nil {
		return nil
	}
	var canceled fsm.CanceledError
	if errors.As(err, &canceled) && canceled.Err != nil {
		return canceled.Err
	}
	return err
}

func (a *Agent) setState(state string) {
	a.state.Store(state)
	metrics.SetAgentState(state, States)
}

func (a *Agent) onEnterState(ctx context.Context, e *fsm.Event) {
	a.setState(e.Dst)
	logging.Ctx(ctx).Info().
		Str("device_id", a.deviceID).
		Str("from", e.Src).
		Str("to", e.Dst).
		Str("event", e.Event).
		Msg("tracking state changed")
}

// beginTracking opens the transport and starts capture. Capture outlives
// the request context; it ends when tracking ends.
func (a *Agent) beginTracking(ctx context.Context, _ *fsm.Event) error {
	a.announce.Store(true)
	if err := a.transport.Open(ctx); err != nil {
		a.announce.Store(false)
		return err
	}

	captureCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	raw := make(chan Fix)
	queue := make(chan Fix, a.opts.QueueSize)

	if err := a.location.Start(captureCtx, raw); err != nil {
		cancel()
		a.announce.Store(false)
		a.transport.Close()
		return err
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.enqueueLoop(captureCtx, raw, queue)
	}()
	go func() {
		defer wg.Done()
		a.emitLoop(captureCtx, queue)
	}()
	go func() {
		wg.Wait()
		close(done)
	}()

	a.captureCancel = cancel
	a.captureDone = done
	return nil
}

// endTracking runs when leaving Tracking by stop or revoke.
func (a *Agent) endTracking(_ context.Context, _ *fsm.Event) error {
	a.announce.Store(false)
	a.location.Stop()
	if a.captureCancel != nil {
		a.captureCancel()
		<-a.captureDone
		a.captureCancel = nil
		a.captureDone = nil
	}
	a.transport.Close()
	return nil
}

// onConnect re-announces the device after every (re)connect while
// tracking. Joining is idempotent on the relay.
func (a *Agent) onConnect() {
	if !a.announce.Load() {
		return
	}
	msg := models.Outbound{Type: models.MsgJoinDevice, Data: a.deviceID}
	if err := a.transport.Emit(context.Background(), msg); err != nil {
		logging.Warn().Err(err).Str("device_id", a.deviceID).Msg("failed to announce device after connect")
		return
	}
	logging.Debug().Str("device_id", a.deviceID).Msg("announced device to relay")
}

// enqueueLoop moves fixes from the capture source to the bounded emit
// queue without ever blocking the source. A full queue drops the newest fix.
func (a *Agent) enqueueLoop(ctx context.Context, raw <-chan Fix, queue chan<- Fix) {
	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-raw:
			if !ok {
				return
			}
			select {
			case queue <- fix:
			default:
				a.drop(DropBackpressure)
			}
		}
	}
}

func (a *Agent) emitLoop(ctx context.Context, queue <-chan Fix) {
	var last *Fix
	for {
		select {
		case <-ctx.Done():
			return
		case fix := <-queue:
			if last != nil && a.opts.DistanceFilterMeters > 0 &&
				Distance(*last, fix) < a.opts.DistanceFilterMeters {
				a.filtered.Add(1)
				continue
			}
			if a.emit(ctx, fix) {
				f := fix
				last = &f
			}
		}
	}
}

// emit sends one fix as trackingData. Fixes captured while the transport
// is down are dropped, not buffered.
func (a *Agent) emit(ctx context.Context, fix Fix) bool {
	if !a.transport.IsOpen() {
		a.drop(DropDisconnected)
		return false
	}

	ts := fix.Timestamp
	if ts.IsZero() {
		ts = a.opts.Now()
	}
	speed := fix.Speed
	battery := a.battery.Level()
	raw := models.RawTelemetry{
		DeviceID:  a.deviceID,
		Timestamp: &ts,
		Location:  &models.Location{Lat: fix.Lat, Lng: fix.Lng},
		Speed:     &speed,
		Battery:   &battery,
		Status:    models.StatusActive,
	}

	if err := a.transport.Emit(ctx, models.Outbound{Type: models.MsgTrackingData, Data: raw}); err != nil {
		a.drop(DropEmitError)
		logging.Debug().Err(err).Str("device_id", a.deviceID).Msg("failed to emit telemetry")
		return false
	}
	a.emitted.Add(1)
	metrics.AgentEventsEmitted.Inc()
	return true
}

func (a *Agent) drop(reason string) {
	switch reason {
	case DropDisconnected:
		a.disconnected.Add(1)
	case DropBackpressure:
		a.backpressure.Add(1)
	case DropEmitError:
		a.emitErrors.Add(1)
	}
	metrics.AgentEventsDropped.WithLabelValues(reason).Inc()
}
