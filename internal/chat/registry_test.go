package chat

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, seq uint64) *Client {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})
	return newClient(seq, local)
}

func TestRegistryInsertLookupRemove(t *testing.T) {
	reg := NewRegistry()
	client := newTestClient(t, 1)

	require.NoError(t, reg.Insert(client))
	require.ErrorIs(t, reg.Insert(client), ErrDuplicateClient)
	require.Equal(t, 1, reg.Len())

	got, ok := reg.Lookup(client.ID)
	require.True(t, ok)
	require.Same(t, client, got)

	removed, ok := reg.Remove(client.ID)
	require.True(t, ok)
	require.Same(t, client, removed)

	_, ok = reg.Remove(client.ID)
	require.False(t, ok, "second removal should report not found")

	_, ok = reg.Lookup(client.ID)
	require.False(t, ok)
	require.Zero(t, reg.Len())
}

func TestRegistrySnapshotIsIndependent(t *testing.T) {
	reg := NewRegistry()
	first := newTestClient(t, 1)
	second := newTestClient(t, 2)
	third := newTestClient(t, 3)

	require.NoError(t, reg.Insert(third))
	require.NoError(t, reg.Insert(first))
	require.NoError(t, reg.Insert(second))

	snapshot := reg.Snapshot()
	require.Equal(t, []*Client{first, second, third}, snapshot, "snapshot follows accept order")

	reg.Remove(second.ID)
	require.Len(t, snapshot, 3)
	require.Len(t, reg.Snapshot(), 2)
}

func TestRegistryConcurrentInsertRemove(t *testing.T) {
	const n = 64

	reg := NewRegistry()
	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = newTestClient(t, uint64(i+1))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			errs <- reg.Insert(c)
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, n, reg.Len())

	for i, c := range clients {
		if i%2 == 0 {
			continue
		}
		wg.Add(2)
		// Two concurrent removals of one id: exactly one wins.
		results := make(chan bool, 2)
		for j := 0; j < 2; j++ {
			go func(id string) {
				defer wg.Done()
				_, ok := reg.Remove(id)
				results <- ok
			}(c.ID)
		}
		wg.Wait()
		close(results)

		wins := 0
		for ok := range results {
			if ok {
				wins++
			}
		}
		require.Equal(t, 1, wins)
	}

	require.Equal(t, n/2, reg.Len())
	require.Len(t, reg.Snapshot(), n/2)
}

func TestClientIDsAreUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		c := newTestClient(t, uint64(i))
		_, dup := seen[c.ID]
		require.False(t, dup)
		seen[c.ID] = struct{}{}
		require.Equal(t, "pipe", c.RemoteAddr)
	}
}
