//go:build linux

package interrupt

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/gpio-controller/internal/worker"
)

func TestBridgeRealSignal(t *testing.T) {
	coord := worker.NewCoordinator()
	b, err := Register(coord, WithSignals(syscall.SIGUSR1))
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	require.True(t, coord.Wait(2*time.Second))
	<-b.Done()
	assert.Equal(t, syscall.SIGUSR1, b.Received())
}
