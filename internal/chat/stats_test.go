package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountersBalanceWhenRemovedFirst(t *testing.T) {
	var c counters
	c.removeConnection()
	c.addConnection()

	st := c.snapshot()
	require.Zero(t, st.Active)
	require.EqualValues(t, 1, st.Accepted)
}
