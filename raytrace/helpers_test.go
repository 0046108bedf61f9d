package raytrace_test

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/accel/backend/soft"
	"github.com/vkngwrapper/accel/raytrace"
)

type syncBuffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

func newLogger() (*slog.Logger, *syncBuffer) {
	logs := &syncBuffer{}
	return slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})), logs
}

func newProfileDevice(t *testing.T, profile soft.Profile) (*slog.Logger, *soft.Device) {
	logger, _ := newLogger()
	device, err := soft.New(logger, profile, soft.CreateOptions{})
	require.NoError(t, err)
	t.Cleanup(device.Destroy)
	return logger, device
}

func newBuilder(t *testing.T) (*raytrace.Builder, *soft.Device, *slog.Logger) {
	logger, device := newProfileDevice(t, soft.DefaultProfile())
	return raytrace.NewBuilder(logger, device, device.Queue(), 5*time.Second), device, logger
}

// frontRay hits the cube's front face at z = -1, inside its first triangle
func frontRay() soft.Ray {
	return soft.Ray{
		Origin:    [3]float32{0.5, 0.25, -5},
		Direction: [3]float32{0, 0, 1},
		TMax:      1000,
		CullMask:  0xff,
	}
}
