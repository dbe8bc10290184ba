package testutil

import (
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	allocatedPorts = make(map[int]struct{})
	portMutex      sync.Mutex
)

// AllocateUniquePort asks the kernel for a free localhost port and makes
// sure the same port is never handed out twice within one test binary.
func AllocateUniquePort(t *testing.T) int {
	portMutex.Lock()
	defer portMutex.Unlock()

	for i := 0; i < 10; i++ {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		_, portStr, err := net.SplitHostPort(listener.Addr().String())
		require.NoError(t, err)
		require.NoError(t, listener.Close())

		port, err := strconv.Atoi(portStr)
		require.NoError(t, err)

		if _, exists := allocatedPorts[port]; exists {
			continue
		}
		allocatedPorts[port] = struct{}{}

		return port
	}

	t.Fatal("failed to find an available port")

	return 0
}
