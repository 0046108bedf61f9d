package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/accel/backend/soft"
	"github.com/vkngwrapper/accel/hal"
)

func newDevicesCommand(a *app) *cobra.Command {
	var build bool

	cmd := &cobra.Command{
		Use:   "devices <dir>",
		Short: "Open a software device for every JSON profile in a directory",
		Long: `devices loads every *.json device profile in dir, prints what each device
offers and, unless --build=false, builds and traces the cube on it.

A profile that fails to load or build is reported and the rest still run; the
command fails if any profile did.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices(cmd.OutOrStdout(), a, args[0], build)
		},
	}

	cmd.Flags().BoolVar(&build, "build", true, "build and trace the cube on each device")
	return cmd
}

func profilePaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list profiles in %s", dir)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	slices.Sort(paths)
	return paths, nil
}

func runDevices(out io.Writer, a *app, dir string, build bool) error {
	paths, err := profilePaths(dir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.Newf("no *.json profiles in %s", dir)
	}

	var failed []string
	for _, path := range paths {
		if err := runDevice(out, a, path, build); err != nil {
			a.logger.Error("devices::run", slog.String("profile", path), slog.Any("error", err))
			fmt.Fprintf(out, "%s: FAILED: %v\n", filepath.Base(path), err)
			failed = append(failed, filepath.Base(path))
		}
	}

	if len(failed) > 0 {
		return errors.Newf("%d of %d profiles failed: %s", len(failed), len(paths), strings.Join(failed, ", "))
	}
	return nil
}

func runDevice(out io.Writer, a *app, path string, build bool) error {
	profile, err := soft.LoadProfile(path)
	if err != nil {
		return err
	}

	adapter, err := soft.NewAdapter(a.logger, profile, a.config.softOptions())
	if err != nil {
		return err
	}

	info := adapter.Info()
	fmt.Fprintf(out, "%s: %q vendor %#x device %#x driver %s\n",
		filepath.Base(path), info.Name, info.Vendor, info.DeviceID, profile.DriverUUID)
	fmt.Fprintf(out, "  features: %s\n", adapter.Features())
	for index, heap := range profile.Memory.Heaps {
		fmt.Fprintf(out, "  heap %d: %d bytes %s\n", index, heap.Size, heap.Flags)
	}
	for index, memoryType := range profile.Memory.Types {
		fmt.Fprintf(out, "  type %d: heap %d %s\n", index, memoryType.HeapIndex, memoryType.Properties)
	}

	if !build {
		return nil
	}
	if !adapter.Features().Contains(hal.FeatureAccelerationStructure) {
		fmt.Fprintln(out, "  skipping build: no acceleration structure support")
		return nil
	}

	device, err := adapter.OpenDevice(adapter.Features())
	if err != nil {
		return err
	}
	defer device.Destroy()

	if err := runCube(io.Discard, a, device, cubeOptions{instances: 1, compact: true}); err != nil {
		return err
	}
	fmt.Fprintln(out, "  cube: ok")
	return nil
}
