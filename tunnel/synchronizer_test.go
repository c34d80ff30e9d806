package tunnel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// chanSource hands out a single pre-built channel.
type chanSource struct {
	ch  chan State
	err error
}

func (c *chanSource) SubscribeTunnelState(context.Context) (<-chan State, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.ch, nil
}

func TestSynchronizer_ForwardsEveryState(t *testing.T) {
	ctx := context.Background()
	kv := newMemoryKV()
	store := NewStore(kv, Codec{RetainEndpoint: true})
	rec := &recorder{}
	store.Subscribe(rec.listen)

	states := []State{
		ConnectingState(testEndpoint(), nil),
		ConnectedState(testEndpoint(), nil),
		ConnectedState(testEndpoint(), nil),
		DisconnectingState(ActionNothing),
		DisconnectedState(),
	}
	src := &chanSource{ch: make(chan State, len(states))}
	for _, s := range states {
		src.ch <- s
	}
	close(src.ch)

	syncer, err := NewSynchronizer(ctx, src, store)
	require.NoError(t, err)
	require.NoError(t, syncer.Run(ctx))

	// The duplicate Connected was forwarded but suppressed by the store
	require.Equal(t, 4, rec.count())
	last, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, DisconnectedState(), last)
}

// bufferedSource behaves like the engine: only states published after
// SubscribeTunnelState returned are delivered.
type bufferedSource struct {
	mu   sync.Mutex
	subs []chan State
}

func (b *bufferedSource) SubscribeTunnelState(context.Context) (<-chan State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan State, 8)
	b.subs = append(b.subs, ch)
	return ch, nil
}

func (b *bufferedSource) publish(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		ch <- s
	}
}

func TestSynchronizer_KeepsStatesPublishedBeforeRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &bufferedSource{}
	store := NewStore(newMemoryKV(), Codec{})
	rec := &recorder{}
	store.Subscribe(rec.listen)

	syncer, err := NewSynchronizer(ctx, src, store)
	require.NoError(t, err)

	want := ErrorState(CauseIsOffline, false)
	src.publish(want)

	go syncer.Run(ctx)

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	got, err := store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSynchronizer_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &chanSource{ch: make(chan State)}
	store := NewStore(newMemoryKV(), Codec{})

	syncer, err := NewSynchronizer(ctx, src, store)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- syncer.Run(ctx) }()

	src.ch <- ErrorState(CauseIsOffline, false)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	state, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ErrorState(CauseIsOffline, false), state)
}

func TestSynchronizer_SubscribeError(t *testing.T) {
	boom := errors.New("engine gone")
	syncer, err := NewSynchronizer(context.Background(), &chanSource{err: boom}, NewStore(newMemoryKV(), Codec{}))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, syncer)
}

func TestSynchronizer_WriteErrorIsFatal(t *testing.T) {
	boom := errors.New("read-only filesystem")
	kv := &mockKV{}
	kv.On("Get", mock.Anything, mock.Anything).Return("", false, nil)
	kv.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(boom).Once()

	src := &chanSource{ch: make(chan State, 2)}
	src.ch <- DisconnectedState()
	src.ch <- DisconnectingState(ActionNothing)

	syncer, err := NewSynchronizer(context.Background(), src, NewStore(kv, Codec{}))
	require.NoError(t, err)
	assert.ErrorIs(t, syncer.Run(context.Background()), boom)
	// The second state was never attempted
	kv.AssertNumberOfCalls(t, "Set", 1)
}
