// Package health tracks the health of the engine's collaborators from the
// outcomes of the calls made to them.
package health

import (
	stderr "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/utils"
)

// Component names
const (
	ComponentStorage = "storage"
	ComponentBackup  = "backup"
)

// HealthState represents the health state of a component. Larger values are
// worse.
type HealthState int

const (
	// StateHealthy indicates the component is fully operational
	StateHealthy HealthState = iota

	// StateDegraded indicates the component fails intermittently
	StateDegraded

	// StateReadOnly indicates reads succeed but writes keep failing
	StateReadOnly

	// StateUnavailable indicates the component is not operational
	StateUnavailable
)

// String returns the string representation of a health state
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateReadOnly:
		return "read-only"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s HealthState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ComponentHealth tracks the health of a specific component
type ComponentHealth struct {
	Name                 string      `json:"name"`
	State                HealthState `json:"state"`
	LastStateChange      time.Time   `json:"last_state_change"`
	LastCheck            time.Time   `json:"last_check"`
	ConsecutiveErrors    int         `json:"consecutive_errors"`
	ConsecutiveSuccesses int         `json:"consecutive_successes"`
	LastErrorMessage     string      `json:"last_error_message,omitempty"`
}

// TrackerConfig configures health tracking behavior
type TrackerConfig struct {
	// ErrorThreshold is the number of consecutive errors before a component
	// is marked degraded, or read-only for write failures
	ErrorThreshold int `yaml:"error_threshold" split_words:"true"`

	// UnavailableThreshold is the number of consecutive errors before a
	// component is marked unavailable
	UnavailableThreshold int `yaml:"unavailable_threshold" split_words:"true"`

	// RecoveryThreshold is the number of consecutive successes that return
	// an unhealthy component to healthy
	RecoveryThreshold int `yaml:"recovery_threshold" split_words:"true"`
}

// StateChangeCallback is called when a component's health state changes
type StateChangeCallback func(component string, oldState, newState HealthState, err error)

// DefaultConfig returns a default tracker configuration
func DefaultConfig() TrackerConfig {
	return TrackerConfig{
		ErrorThreshold:       3,
		UnavailableThreshold: 10,
		RecoveryThreshold:    2,
	}
}

// Tracker tracks the health of multiple components and derives the overall
// health from the worst of them.
type Tracker struct {
	mu         sync.RWMutex
	components map[string]*ComponentHealth
	config     TrackerConfig
	callbacks  []StateChangeCallback
	logger     *zap.Logger
}

// NewTracker creates a new health tracker
func NewTracker(config TrackerConfig, logger *zap.Logger) *Tracker {
	if config.ErrorThreshold <= 0 {
		config.ErrorThreshold = DefaultConfig().ErrorThreshold
	}
	if config.UnavailableThreshold < config.ErrorThreshold {
		config.UnavailableThreshold = config.ErrorThreshold
	}
	if config.RecoveryThreshold <= 0 {
		config.RecoveryThreshold = 1
	}
	return &Tracker{
		components: make(map[string]*ComponentHealth),
		config:     config,
		logger:     utils.OrNop(logger).Named("health"),
	}
}

// RegisterComponent registers a new component for health tracking
func (t *Tracker) RegisterComponent(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.components[name]; !exists {
		now := time.Now()
		t.components[name] = &ComponentHealth{
			Name:            name,
			State:           StateHealthy,
			LastStateChange: now,
			LastCheck:       now,
		}
	}
}

// RecordSuccess records a successful call to a component. Unregistered
// components are ignored.
func (t *Tracker) RecordSuccess(component string) {
	t.mu.Lock()
	health, exists := t.components[component]
	if !exists {
		t.mu.Unlock()
		return
	}

	oldState := health.State
	health.LastCheck = time.Now()
	health.ConsecutiveErrors = 0
	health.ConsecutiveSuccesses++
	if health.State != StateHealthy && health.ConsecutiveSuccesses >= t.config.RecoveryThreshold {
		t.transitionState(health, StateHealthy)
	}
	newState := health.State
	t.mu.Unlock()

	if oldState != newState {
		t.notifyStateChange(component, oldState, newState, nil)
	}
}

// RecordError records a failed call to a component. Unregistered components
// are ignored.
func (t *Tracker) RecordError(component string, err error) {
	t.mu.Lock()
	health, exists := t.components[component]
	if !exists {
		t.mu.Unlock()
		return
	}

	oldState := health.State
	health.LastCheck = time.Now()
	health.ConsecutiveSuccesses = 0
	health.ConsecutiveErrors++
	if err != nil {
		health.LastErrorMessage = err.Error()
	}

	newState := oldState
	switch {
	case health.ConsecutiveErrors >= t.config.UnavailableThreshold:
		newState = StateUnavailable
	case health.ConsecutiveErrors >= t.config.ErrorThreshold:
		if isWriteError(err) {
			newState = StateReadOnly
		} else {
			newState = StateDegraded
		}
	}
	if newState != oldState {
		t.transitionState(health, newState)
	}
	t.mu.Unlock()

	if oldState != newState {
		t.notifyStateChange(component, oldState, newState, err)
	}
}

// GetState returns the current health state of a component. Unregistered
// components are unavailable.
func (t *Tracker) GetState(component string) HealthState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if health, exists := t.components[component]; exists {
		return health.State
	}
	return StateUnavailable
}

// GetComponentHealth returns a copy of the health information for a component
func (t *Tracker) GetComponentHealth(component string) (ComponentHealth, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	health, exists := t.components[component]
	if !exists {
		return ComponentHealth{}, fmt.Errorf("component %s not registered", component)
	}
	return *health, nil
}

// GetAllComponents returns health information for all registered
// components, ordered by name
func (t *Tracker) GetAllComponents() []ComponentHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]ComponentHealth, 0, len(t.components))
	for _, health := range t.components {
		result = append(result, *health)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// GetOverallHealth returns the worst state across all components
func (t *Tracker) GetOverallHealth() HealthState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	overallState := StateHealthy
	for _, health := range t.components {
		if health.State > overallState {
			overallState = health.State
		}
	}
	return overallState
}

// IsHealthy returns true if the component is in a healthy state
func (t *Tracker) IsHealthy(component string) bool {
	return t.GetState(component) == StateHealthy
}

// CanRead returns true if reads from the component are expected to work
func (t *Tracker) CanRead(component string) bool {
	return t.GetState(component) != StateUnavailable
}

// CanWrite returns true if writes to the component are expected to work
func (t *Tracker) CanWrite(component string) bool {
	state := t.GetState(component)
	return state == StateHealthy || state == StateDegraded
}

// OnStateChange registers a callback run after every state change. Callbacks
// run synchronously on the goroutine that recorded the change.
func (t *Tracker) OnStateChange(callback StateChangeCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.callbacks = append(t.callbacks, callback)
}

// transitionState must be called with the lock held.
func (t *Tracker) transitionState(health *ComponentHealth, newState HealthState) {
	health.State = newState
	health.LastStateChange = time.Now()
	if newState == StateHealthy {
		health.ConsecutiveErrors = 0
		health.LastErrorMessage = ""
	}
}

func (t *Tracker) notifyStateChange(component string, oldState, newState HealthState, err error) {
	fields := []zap.Field{
		zap.String("component", component),
		zap.Stringer("from", oldState),
		zap.Stringer("to", newState),
	}
	if newState > oldState {
		t.logger.Warn("component health degraded", append(fields, zap.Error(err))...)
	} else {
		t.logger.Info("component health recovered", fields...)
	}

	t.mu.RLock()
	callbacks := append([]StateChangeCallback(nil), t.callbacks...)
	t.mu.RUnlock()
	for _, callback := range callbacks {
		callback(component, oldState, newState, err)
	}
}

// isWriteError reports whether err is a write failure that leaves reads
// usable.
func isWriteError(err error) bool {
	var vErr *errors.VFSError
	if stderr.As(err, &vErr) {
		return vErr.Code == errors.ErrCodeStorageWrite
	}
	return false
}
