package health

import (
	"fmt"
	"testing"

	"github.com/objectfs/webvfs/pkg/errors"
)

func newTestTracker() *Tracker {
	return NewTracker(TrackerConfig{
		ErrorThreshold:       3,
		UnavailableThreshold: 10,
		RecoveryThreshold:    2,
	}, nil)
}

func TestTracker_RegisterComponent(t *testing.T) {
	tracker := newTestTracker()

	tracker.RegisterComponent(ComponentStorage)

	if state := tracker.GetState(ComponentStorage); state != StateHealthy {
		t.Errorf("Expected initial state to be StateHealthy, got %s", state)
	}
	if state := tracker.GetState("unknown"); state != StateUnavailable {
		t.Errorf("Expected unregistered component to be unavailable, got %s", state)
	}
}

func TestTracker_RecordSuccess(t *testing.T) {
	tracker := newTestTracker()
	tracker.RegisterComponent(ComponentStorage)

	tracker.RecordError(ComponentStorage, fmt.Errorf("test error"))
	tracker.RecordError(ComponentStorage, fmt.Errorf("test error"))
	tracker.RecordSuccess(ComponentStorage)

	health, err := tracker.GetComponentHealth(ComponentStorage)
	if err != nil {
		t.Fatalf("Failed to get component health: %v", err)
	}
	if health.ConsecutiveErrors != 0 {
		t.Errorf("Expected ConsecutiveErrors=0 after a success, got %d", health.ConsecutiveErrors)
	}
	if health.State != StateHealthy {
		t.Errorf("Expected StateHealthy, got %s", health.State)
	}
}

func TestTracker_RecordError_Degradation(t *testing.T) {
	tracker := newTestTracker()
	tracker.RegisterComponent(ComponentStorage)

	for i := 0; i < 2; i++ {
		tracker.RecordError(ComponentStorage, fmt.Errorf("error %d", i))
	}
	if state := tracker.GetState(ComponentStorage); state != StateHealthy {
		t.Errorf("Expected StateHealthy before threshold, got %s", state)
	}

	tracker.RecordError(ComponentStorage, errors.NewError(errors.ErrCodeStorageRead, "read failed"))
	if state := tracker.GetState(ComponentStorage); state != StateDegraded {
		t.Errorf("Expected StateDegraded after threshold, got %s", state)
	}
}

func TestTracker_RecordError_ReadOnly(t *testing.T) {
	tracker := newTestTracker()
	tracker.RegisterComponent(ComponentStorage)

	writeErr := errors.NewError(errors.ErrCodeStorageWrite, "put failed")
	for i := 0; i < 3; i++ {
		tracker.RecordError(ComponentStorage, writeErr)
	}

	if state := tracker.GetState(ComponentStorage); state != StateReadOnly {
		t.Errorf("Expected StateReadOnly for write failures, got %s", state)
	}
	if !tracker.CanRead(ComponentStorage) {
		t.Error("Expected CanRead in read-only state")
	}
	if tracker.CanWrite(ComponentStorage) {
		t.Error("Expected !CanWrite in read-only state")
	}
}

func TestTracker_RecordError_Unavailable(t *testing.T) {
	tracker := newTestTracker()
	tracker.RegisterComponent(ComponentStorage)

	for i := 0; i < 10; i++ {
		tracker.RecordError(ComponentStorage, fmt.Errorf("error %d", i))
	}

	if state := tracker.GetState(ComponentStorage); state != StateUnavailable {
		t.Errorf("Expected StateUnavailable, got %s", state)
	}
	if tracker.CanRead(ComponentStorage) {
		t.Error("Expected !CanRead when unavailable")
	}
}

func TestTracker_RecoveryFromDegradation(t *testing.T) {
	tracker := newTestTracker()
	tracker.RegisterComponent(ComponentStorage)

	for i := 0; i < 3; i++ {
		tracker.RecordError(ComponentStorage, fmt.Errorf("error"))
	}
	tracker.RecordSuccess(ComponentStorage)
	if state := tracker.GetState(ComponentStorage); state != StateDegraded {
		t.Errorf("Expected StateDegraded after one success, got %s", state)
	}

	tracker.RecordSuccess(ComponentStorage)
	health, _ := tracker.GetComponentHealth(ComponentStorage)
	if health.State != StateHealthy {
		t.Errorf("Expected StateHealthy after recovery, got %s", health.State)
	}
	if health.LastErrorMessage != "" {
		t.Errorf("Expected error message cleared on recovery, got %q", health.LastErrorMessage)
	}
}

func TestTracker_GetOverallHealth(t *testing.T) {
	tracker := newTestTracker()
	if state := tracker.GetOverallHealth(); state != StateHealthy {
		t.Errorf("Expected StateHealthy with no components, got %s", state)
	}

	tracker.RegisterComponent(ComponentStorage)
	tracker.RegisterComponent(ComponentBackup)
	for i := 0; i < 3; i++ {
		tracker.RecordError(ComponentBackup, fmt.Errorf("error"))
	}

	if state := tracker.GetOverallHealth(); state != StateDegraded {
		t.Errorf("Expected overall StateDegraded, got %s", state)
	}
}

func TestTracker_StateChangeCallback(t *testing.T) {
	tracker := newTestTracker()
	tracker.RegisterComponent(ComponentStorage)

	type change struct {
		component string
		from, to  HealthState
	}
	var changes []change
	tracker.OnStateChange(func(component string, from, to HealthState, _ error) {
		changes = append(changes, change{component, from, to})
	})

	for i := 0; i < 3; i++ {
		tracker.RecordError(ComponentStorage, fmt.Errorf("error"))
	}
	tracker.RecordSuccess(ComponentStorage)
	tracker.RecordSuccess(ComponentStorage)

	want := []change{
		{ComponentStorage, StateHealthy, StateDegraded},
		{ComponentStorage, StateDegraded, StateHealthy},
	}
	if len(changes) != len(want) {
		t.Fatalf("Expected %d state changes, got %v", len(want), changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %+v, want %+v", i, changes[i], want[i])
		}
	}
}

func TestTracker_GetAllComponents(t *testing.T) {
	tracker := newTestTracker()
	tracker.RegisterComponent(ComponentStorage)
	tracker.RegisterComponent(ComponentBackup)

	all := tracker.GetAllComponents()
	if len(all) != 2 {
		t.Fatalf("Expected 2 components, got %d", len(all))
	}
	if all[0].Name != ComponentBackup || all[1].Name != ComponentStorage {
		t.Errorf("Expected components ordered by name, got %s, %s", all[0].Name, all[1].Name)
	}
}

func TestTracker_UnregisteredIgnored(t *testing.T) {
	tracker := newTestTracker()

	tracker.RecordError("ghost", fmt.Errorf("error"))
	tracker.RecordSuccess("ghost")

	if _, err := tracker.GetComponentHealth("ghost"); err == nil {
		t.Error("Expected error for unregistered component")
	}
}

func TestNewTracker_NormalizesConfig(t *testing.T) {
	tracker := NewTracker(TrackerConfig{ErrorThreshold: 5, UnavailableThreshold: 2}, nil)
	tracker.RegisterComponent(ComponentStorage)

	for i := 0; i < 4; i++ {
		tracker.RecordError(ComponentStorage, fmt.Errorf("error"))
	}
	if state := tracker.GetState(ComponentStorage); state != StateHealthy {
		t.Errorf("Expected StateHealthy below the error threshold, got %s", state)
	}
	tracker.RecordError(ComponentStorage, fmt.Errorf("error"))
	if state := tracker.GetState(ComponentStorage); state != StateUnavailable {
		t.Errorf("Expected unavailable threshold raised to the error threshold, got %s", state)
	}
}

func TestHealthState_String(t *testing.T) {
	tests := []struct {
		state    HealthState
		expected string
	}{
		{StateHealthy, "healthy"},
		{StateDegraded, "degraded"},
		{StateReadOnly, "read-only"},
		{StateUnavailable, "unavailable"},
		{HealthState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("HealthState(%d).String() = %s, want %s", tt.state, got, tt.expected)
		}
	}
}
