package hsm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehsm/hsm"
)

func TestBuilderAssignsStableIDsByName(t *testing.T) {
	b := hsm.NewBuilder()
	a1 := b.StateID("A")
	a2 := b.StateID("A")
	b1 := b.StateID("B")

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b1)
}

func TestBuilderBuildSucceeds(t *testing.T) {
	b := hsm.NewBuilder()
	b.AddState("A", hsm.StateCallbacks{})
	b.AddState("B", hsm.StateCallbacks{})
	b.AddTransition("A", "B", "GO", nil, nil, false)
	b.WithInitialState("A")

	store, err := b.Build()
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Nil(t, b.Err())
}

func TestBuilderCapturesFirstStructuralError(t *testing.T) {
	b := hsm.NewBuilder()
	b.AddChild("P", "C")
	// Reparenting C under a different parent must fail and stick as the
	// first recorded error even if later calls also fail.
	b.AddChild("Q", "C")
	b.AddChild("R", "C")

	require.Error(t, b.Err())
	assert.Contains(t, b.Err().Error(), "AddChild(Q,C)")

	store, err := b.Build()
	assert.Nil(t, store)
	assert.Error(t, err)
}

func TestBuilderFinalStateWithoutExplicitExitEvent(t *testing.T) {
	b := hsm.NewBuilder()
	b.AddFinalState("Done", "", hsm.StateCallbacks{})
	b.WithInitialState("Done")

	store, err := b.Build()
	require.NoError(t, err)
	require.NotNil(t, store)
}
