package registry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdelston0/pixelpusher/hostusb"
	"github.com/cdelston0/pixelpusher/internal/registry"
)

func devInfo(bus, addr int) hostusb.DeviceInfo {
	return hostusb.DeviceInfo{
		ID:      hostusb.DeviceID{Bus: bus, Address: addr},
		Port:    2,
		Vendor:  0xcafe,
		Product: 0x4001,
	}
}

func TestInsertIfAbsent(t *testing.T) {
	r := registry.New()
	info := devInfo(1, 5)

	h, ok := r.InsertIfAbsent(context.Background(), info)
	require.True(t, ok)
	require.NotNil(t, h)
	assert.Equal(t, info, h.Info)

	dup, ok := r.InsertIfAbsent(context.Background(), info)
	assert.False(t, ok)
	assert.Nil(t, dup)

	got, ok := r.Get(info.ID)
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.Equal(t, 1, r.Len())
}

func TestConcurrentInsertSameIdentity(t *testing.T) {
	r := registry.New()
	info := devInfo(3, 7)

	const n = 32
	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.InsertIfAbsent(context.Background(), info); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, r.Len())
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	r := registry.New()
	h, ok := r.Remove(hostusb.DeviceID{Bus: 9, Address: 9})
	assert.False(t, ok)
	assert.Nil(t, h)
}

func TestDistinctIdentitiesDoNotInterfere(t *testing.T) {
	r := registry.New()
	a := devInfo(1, 2)
	b := devInfo(1, 3)

	_, ok := r.InsertIfAbsent(context.Background(), a)
	require.True(t, ok)
	_, ok = r.InsertIfAbsent(context.Background(), b)
	require.True(t, ok)
	assert.Equal(t, 2, r.Len())

	removed, ok := r.Remove(a.ID)
	require.True(t, ok)
	assert.Equal(t, a, removed.Info)

	_, ok = r.Get(b.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestCancelAndFinish(t *testing.T) {
	r := registry.New()
	h, ok := r.InsertIfAbsent(context.Background(), devInfo(2, 2))
	require.True(t, ok)

	select {
	case <-h.Context().Done():
		t.Fatal("context cancelled before Cancel")
	default:
	}

	h.Cancel()
	<-h.Context().Done()

	// Cancel is idempotent.
	h.Cancel()

	done := make(chan struct{})
	go func() {
		<-h.Done()
		close(done)
	}()
	h.Finish()
	<-done
}

func TestDrainCancelsEverything(t *testing.T) {
	r := registry.New()
	for i := 0; i < 4; i++ {
		_, ok := r.InsertIfAbsent(context.Background(), devInfo(1, i))
		require.True(t, ok)
	}

	handles := r.Drain()
	assert.Len(t, handles, 4)
	assert.Equal(t, 0, r.Len())
	for _, h := range handles {
		select {
		case <-h.Context().Done():
		default:
			t.Fatalf("handle %s not cancelled by drain", h.Info.ID)
		}
	}
}
