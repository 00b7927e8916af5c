package state_test

import (
	"context"
	"testing"

	"github.com/aretw0/autopilot/pkg/adapters/memory"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(opts ...state.Option) *state.Store {
	return state.New(memory.NewStore(), opts...)
}

func TestStore_ClearRemovesCurrentTask(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	require.NoError(t, s.BeginTask(ctx, "publish a post"))
	require.NoError(t, s.Clear(ctx))

	_, err := s.Get(ctx, domain.KeyCurrentTask)
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	_, ok := s.CurrentTask(ctx)
	assert.False(t, ok)
}

func TestStore_PermanentTokenPreferred(t *testing.T) {
	ctx := context.Background()
	s := newStore(state.WithPermanentToken("  Bearer PERM  "))

	assert.True(t, s.Has(ctx, domain.KeyLoginToken), "permanent token counts before any login")

	require.NoError(t, s.SetLoginToken(ctx, "DYN"))

	tok, ok := s.LoginToken(ctx)
	require.True(t, ok)
	assert.Equal(t, "PERM", tok)

	val, err := s.Get(ctx, domain.KeyLoginToken)
	require.NoError(t, err)
	assert.Equal(t, "PERM", val)

	status := s.TokenStatus(ctx)
	assert.True(t, status.HasPermanent)
	assert.True(t, status.HasDynamic)
	assert.Equal(t, "PERM", status.Preview)
}

func TestStore_DynamicTokenFallback(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	assert.False(t, s.HasLoginToken(ctx))
	require.NoError(t, s.SetLoginToken(ctx, "DYN"))

	tok, ok := s.LoginToken(ctx)
	require.True(t, ok)
	assert.Equal(t, "DYN", tok)
}

func TestStore_TokenPreviewTruncates(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.SetLoginToken(ctx, "abcdefghijklmnopqrstuvwxyz"))

	status := s.TokenStatus(ctx)
	assert.False(t, status.HasPermanent)
	assert.Equal(t, "abcdefghijklmnopqrst...", status.Preview)
}

func TestStore_StepLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	require.NoError(t, s.BeginTask(ctx, "review posts"))
	assert.Equal(t, 0, s.Step(ctx))

	n, err := s.IncrementStep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.IncrementStep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.SetLastResponse(ctx, `{"code":10001}`))
	require.NoError(t, s.RecordTurn(ctx, domain.ModelTurn{StepResult: "listed", NextStep: "approve the first"}))

	// A new task resets the counter and forgets the previous turn.
	require.NoError(t, s.BeginTask(ctx, "publish a post"))
	assert.Equal(t, 0, s.Step(ctx))
	_, has := s.LastResponse(ctx)
	assert.False(t, has)
	assert.Empty(t, s.NextStep(ctx))
	assert.Empty(t, s.StepResult(ctx))
}

func TestStore_CompleteTaskKeepsCredentials(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	require.NoError(t, s.SetLoginToken(ctx, "T1"))
	require.NoError(t, s.BeginTask(ctx, "publish a post"))
	require.NoError(t, s.RecordTurn(ctx, domain.ModelTurn{StepResult: "done", NextStep: "none"}))
	require.NoError(t, s.CompleteTask(ctx))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{domain.KeyLoginToken: "T1"}, snap)
}

func TestStore_MalformedStepReadsAsZero(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.Set(ctx, domain.KeyCurrentStep, "abc"))
	assert.Equal(t, 0, s.Step(ctx))
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "abc", state.NormalizeToken(" bearer abc "))
	assert.Equal(t, "abc", state.NormalizeToken("abc"))
	assert.Equal(t, "", state.NormalizeToken("   "))
}
