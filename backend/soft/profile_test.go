package soft_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/accel/backend/soft"
	"github.com/vkngwrapper/accel/hal"
)

const integratedProfile = `{
	"name": "integrated",
	"vendorID": 32902,
	"deviceID": 17,
	"features": ["AccelerationStructure", "BufferDeviceAddress"],
	"limits": {"nonCoherentAtomSize": 64, "maxMemoryAllocationCount": 16},
	"memoryHeaps": [{"size": 1048576, "flags": ["DeviceLocal"]}],
	"memoryTypes": [
		{"heapIndex": 0, "properties": ["DeviceLocal", "HostVisible", "HostCoherent"]}
	],
	"comment": "ignored"
}`

func TestParseProfile(t *testing.T) {
	profile, err := soft.ParseProfile([]byte(integratedProfile))
	require.NoError(t, err)

	require.Equal(t, "integrated", profile.Name)
	require.Equal(t, uint32(32902), profile.VendorID)
	require.Equal(t, hal.FeatureAccelerationStructure|hal.FeatureBufferDeviceAddress, profile.Features)
	require.Equal(t, uint64(64), profile.Limits.NonCoherentAtomSize)
	require.Equal(t, uint32(16), profile.Limits.MaxMemoryAllocationCount)
	require.Equal(t, soft.DefaultProfile().Limits.MinAccelerationStructureScratchOffsetAlignment,
		profile.Limits.MinAccelerationStructureScratchOffsetAlignment)
	require.Len(t, profile.Memory.Heaps, 1)
	require.Equal(t, []hal.MemoryType{{
		Properties: hal.MemoryPropertyDeviceLocal | hal.MemoryPropertyCPUVisible | hal.MemoryPropertyCoherent,
		HeapIndex:  0,
	}}, profile.Memory.Types)

	// Driver ids are derived from the name unless set
	again, err := soft.ParseProfile([]byte(integratedProfile))
	require.NoError(t, err)
	require.Equal(t, profile.DriverUUID, again.DriverUUID)
	require.NotEqual(t, soft.DefaultProfile().DriverUUID, profile.DriverUUID)
}

func TestParseProfileErrors(t *testing.T) {
	tests := map[string]string{
		"syntax":           `{"name": }`,
		"unknown feature":  `{"features": ["Teleportation"]}`,
		"unknown property": `{"memoryTypes": [{"heapIndex": 0, "properties": ["Glowing"]}]}`,
		"missing heap":     `{"memoryHeaps": [{"size": 1024}], "memoryTypes": [{"heapIndex": 1}]}`,
		"atom size":        `{"limits": {"nonCoherentAtomSize": 100}}`,
		"driver uuid":      `{"driverUUID": "not a uuid"}`,
	}
	for name, document := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := soft.ParseProfile([]byte(document))
			require.Error(t, err)
		})
	}
}

func TestLoadProfileOpensDevice(t *testing.T) {
	driver := uuid.New()
	path := filepath.Join(t.TempDir(), "device.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name": "from disk", "driverUUID": "`+driver.String()+`"}`), 0o600))

	profile, err := soft.LoadProfile(path)
	require.NoError(t, err)
	require.Equal(t, driver, profile.DriverUUID)

	device, err := soft.New(nil, profile, soft.CreateOptions{ExternallySynchronized: true})
	require.NoError(t, err)
	defer device.Destroy()
	require.Equal(t, profile.Memory, device.MemoryProperties())

	_, err = soft.LoadProfile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
