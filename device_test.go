package ftlmngt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/ftlmngt/collab/memdev"
	"github.com/ehrlich-b/ftlmngt/internal/collab"
)

func newTestProvider() *memdev.Device {
	return memdev.New(context.Background(), memdev.Config{
		BaseBlockCount:  4096,
		BaseBlockSize:   512,
		CacheBlockCount: 512,
		CacheBlockSize:  512,
		HasCache:        true,
		Mode:            collab.ModeCreate,
	})
}

func TestNewDevice_RequiresProvider(t *testing.T) {
	_, err := NewDevice(DeviceParams{}, nil)
	require.Error(t, err)
	require.True(t, IsCode(err, ErrCodeConstruction))
}

func TestDevice_StartupSelfTestUnmapShutdown(t *testing.T) {
	params := DefaultParams(newTestProvider())
	dev, err := NewDevice(params, nil)
	require.NoError(t, err)
	defer dev.Close()

	require.NoError(t, dev.Startup())
	require.NoError(t, dev.SelfTest())
	require.NoError(t, dev.Unmap(0, 16))
	require.NoError(t, dev.Shutdown())

	snap := dev.Metrics().Snapshot()
	require.Greater(t, snap.ProcessesRun, uint64(0))
	require.Greater(t, snap.StepsRun, uint64(0))
}

func TestDevice_FastShutdownUsesFastPath(t *testing.T) {
	params := DefaultParams(newTestProvider())
	params.FastShutdown = true
	dev, err := NewDevice(params, nil)
	require.NoError(t, err)
	defer dev.Close()

	require.NoError(t, dev.Startup())
	require.NoError(t, dev.Shutdown())
}

func TestDevice_LayoutUpgradeAdvancesP2LVersion(t *testing.T) {
	provider := newTestProvider()
	dev, err := NewDevice(DefaultParams(provider), nil)
	require.NoError(t, err)
	defer dev.Close()

	require.NoError(t, dev.Startup())
	require.NoError(t, dev.LayoutUpgrade())
	require.Equal(t, 1, provider.SuperBlock().LayoutVersion("p2l"))
}
