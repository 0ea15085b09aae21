package protocolclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReconnectStrategyAuthKeyDuplicatedNeverRetries(t *testing.T) {
	s := ReconnectStrategyFor(KindAuthKeyDuplicated, 0)
	require.False(t, s.ShouldRetry)
	require.Equal(t, ReconnectFull, s.Type)
}

func TestReconnectStrategyDelayGrowsWithFailureCount(t *testing.T) {
	s0 := ReconnectStrategyFor(KindNetwork, 0)
	s1 := ReconnectStrategyFor(KindNetwork, 1)
	s2 := ReconnectStrategyFor(KindNetwork, 2)
	require.Less(t, s0.Delay, s1.Delay)
	require.Less(t, s1.Delay, s2.Delay)
}

func TestReconnectStrategyCapsAtMaxDelay(t *testing.T) {
	s := ReconnectStrategyFor(KindNetwork, 50)
	require.LessOrEqual(t, s.Delay, strategyTable[KindNetwork].maxDelay)
}

func TestReconnectStrategyExhaustsRetries(t *testing.T) {
	s := ReconnectStrategyFor(KindBinaryReader, 100)
	require.False(t, s.ShouldRetry)
}

func TestReconnectStrategyBinaryReaderIsFullReconnect(t *testing.T) {
	s := ReconnectStrategyFor(KindBinaryReader, 0)
	require.Equal(t, ReconnectFull, s.Type)
}
