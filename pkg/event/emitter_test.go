package event_test

import (
	"testing"

	"github.com/bytepulseflow/pulsewave/pkg/event"
	"github.com/stretchr/testify/assert"
)

func TestEmitDeliversToListeners(t *testing.T) {
	emitter := event.NewEmitter[string](nil)

	got := []any{}
	emitter.On("ping", func(payload any) { got = append(got, payload) })

	emitter.Emit("ping", 1)
	emitter.Emit("ping", 2)
	emitter.Emit("other", 3)

	assert.Equal(t, []any{1, 2}, got)
}

func TestUnregisterRemovesExactlyOneRegistration(t *testing.T) {
	emitter := event.NewEmitter[string](nil)

	first, second := 0, 0
	off := emitter.On("e", func(any) { first++ })
	emitter.On("e", func(any) { second++ })

	off()
	off() // idempotent

	emitter.Emit("e", nil)

	if first != 0 || second != 1 {
		t.Fatalf("expected only the second listener to fire, got %d/%d", first, second)
	}
}

func TestOnIsIdempotentForSameListener(t *testing.T) {
	emitter := event.NewEmitter[string](nil)

	calls := 0
	listener := func(any) { calls++ }
	emitter.On("e", listener)
	emitter.On("e", listener)

	emitter.Emit("e", nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, emitter.ListenerCount("e"))
}

func TestOnceFiresExactlyOnce(t *testing.T) {
	emitter := event.NewEmitter[string](nil)

	calls := 0
	emitter.Once("e", func(any) { calls++ })

	emitter.Emit("e", nil)
	emitter.Emit("e", nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, emitter.ListenerCount("e"))
}

// Mutations during an emit must not affect the snapshot being delivered,
// only subsequent emits.
func TestEmitUsesListenerSnapshot(t *testing.T) {
	emitter := event.NewEmitter[string](nil)

	late := 0
	lateListener := func(any) { late++ }

	first := 0
	emitter.On("e", func(any) {
		first++
		emitter.On("e", lateListener)
	})

	emitter.Emit("e", nil)
	if first != 1 || late != 0 {
		t.Fatalf("listener added during emit must not receive this event, got first=%d late=%d", first, late)
	}

	emitter.Emit("e", nil)
	if late != 1 {
		t.Fatalf("listener added during previous emit must receive the next one, got %d", late)
	}
}

func TestRemovalDuringEmitDoesNotAffectSnapshot(t *testing.T) {
	emitter := event.NewEmitter[string](nil)

	second := 0
	secondListener := func(any) { second++ }

	emitter.On("e", func(any) { emitter.Off("e", secondListener) })
	emitter.On("e", secondListener)

	emitter.Emit("e", nil)
	assert.Equal(t, 1, second, "removal during emit must not affect this delivery")

	emitter.Emit("e", nil)
	assert.Equal(t, 1, second, "removal must affect subsequent emits")
}

func TestPanickingListenerDoesNotInterruptOthers(t *testing.T) {
	emitter := event.NewEmitter[string](nil)

	delivered := false
	emitter.On("e", func(any) { panic("listener bug") })
	emitter.On("e", func(any) { delivered = true })

	emitter.Emit("e", nil)

	assert.True(t, delivered)
}

func TestRemoveAll(t *testing.T) {
	emitter := event.NewEmitter[string](nil)

	emitter.On("a", func(any) {})
	emitter.On("b", func(any) {})

	emitter.RemoveAll("a")
	assert.Equal(t, 0, emitter.ListenerCount("a"))
	assert.Equal(t, 1, emitter.ListenerCount("b"))

	emitter.RemoveAll()
	assert.Equal(t, 0, emitter.ListenerCount("b"))
}
