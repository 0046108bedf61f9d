package soft

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/accel/hal"
)

// Adapter is a software physical device described by a Profile
type Adapter struct {
	logger  *slog.Logger
	profile Profile
	options CreateOptions
}

var _ hal.Adapter = &Adapter{}

// NewAdapter validates the profile and returns an adapter that opens software devices
func NewAdapter(logger *slog.Logger, profile Profile, options CreateOptions) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	return &Adapter{
		logger:  logger,
		profile: profile,
		options: options,
	}, nil
}

func (a *Adapter) Info() hal.AdapterInfo {
	return hal.AdapterInfo{
		Name:     a.profile.Name,
		Vendor:   a.profile.VendorID,
		DeviceID: a.profile.DeviceID,
		Software: true,
	}
}

func (a *Adapter) Features() hal.Features {
	return a.profile.Features
}

func (a *Adapter) Profile() Profile {
	return a.profile
}

func (a *Adapter) Open(features hal.Features) (*hal.Gpu, error) {
	device, err := a.OpenDevice(features)
	if err != nil {
		return nil, err
	}

	return &hal.Gpu{
		Device: device,
		Queues: []hal.Queue{device.Queue()},
	}, nil
}

// OpenDevice is Open returning the concrete device, which adds TraceRay and statistics
func (a *Adapter) OpenDevice(features hal.Features) (*Device, error) {
	if !a.profile.Features.Contains(features) {
		return nil, errors.Wrapf(hal.ErrNotSupported, "requested features %s, adapter %q offers %s",
			features, a.profile.Name, a.profile.Features)
	}

	return newDevice(a.logger, a.profile, features, a.options)
}

// New opens a device with every feature profile offers
func New(logger *slog.Logger, profile Profile, options CreateOptions) (*Device, error) {
	adapter, err := NewAdapter(logger, profile, options)
	if err != nil {
		return nil, err
	}
	return adapter.OpenDevice(profile.Features)
}
