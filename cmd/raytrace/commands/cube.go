package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/accel/backend/soft"
	"github.com/vkngwrapper/accel/hal"
	"github.com/vkngwrapper/accel/raytrace"
)

type cubeOptions struct {
	instances int
	compact   bool
	stats     bool
}

func newCubeCommand(a *app) *cobra.Command {
	options := cubeOptions{}

	cmd := &cobra.Command{
		Use:   "cube",
		Short: "Build a cube, instance it and trace a ray through it",
		Long: `cube uploads a unit cube, builds a bottom level structure from it, optionally
compacts it, then builds a top level structure holding a row of instances and
traces one ray through each of them on the software device.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := a.config.loadProfile()
			if err != nil {
				return err
			}
			device, err := soft.New(a.logger, profile, a.config.softOptions())
			if err != nil {
				return err
			}
			defer device.Destroy()

			return runCube(cmd.OutOrStdout(), a, device, options)
		},
	}

	cmd.Flags().IntVar(&options.instances, "instances", 3, "number of cube instances in the top level structure")
	cmd.Flags().BoolVar(&options.compact, "compact", true, "compact the bottom level structure before instancing it")
	cmd.Flags().BoolVar(&options.stats, "stats", false, "print the device's memory statistics as JSON when done")
	return cmd
}

// instanceSpacing places the cubes, which span -1..1, with a gap between neighbours
const instanceSpacing = 3

func runCube(out io.Writer, a *app, device *soft.Device, options cubeOptions) error {
	if options.instances < 1 {
		return errors.Newf("need at least one instance, got %d", options.instances)
	}

	builder := raytrace.NewBuilder(a.logger, device, device.Queue(), a.config.Timeout)

	mesh, err := raytrace.UploadCube(a.logger, device)
	if err != nil {
		return err
	}
	defer mesh.Destroy(device)

	flags := hal.BuildPreferFastTrace
	if options.compact {
		flags |= hal.BuildAllowCompaction
	}
	desc, ranges := mesh.Geometry(flags)

	blas, err := builder.Build(desc, ranges)
	if err != nil {
		return err
	}
	defer blas.Destroy(device)
	device.SetAccelerationStructureName(blas.AccelerationStructure, "cube")

	fmt.Fprintf(out, "bottom level: %d triangles, %d bytes\n", ranges[0].PrimitiveCount, blas.AccelerationStructure.Size())

	if options.compact {
		originalSize := blas.AccelerationStructure.Size()
		if err := builder.Compact(blas); err != nil {
			return err
		}
		device.SetAccelerationStructureName(blas.AccelerationStructure, "cube (compacted)")
		fmt.Fprintf(out, "compacted: %d -> %d bytes\n", originalSize, blas.AccelerationStructure.Size())
	}

	instances := make([]hal.Instance, 0, options.instances)
	for i := 0; i < options.instances; i++ {
		instance := hal.NewInstance(blas.Address(device))
		instance.Transform = hal.TranslationTransform(float32(i*instanceSpacing), 0, 0)
		instance.SetInstanceCustomIndex(uint32(i))
		instance.SetMask(0xff)
		instances = append(instances, instance)
	}

	tlas, err := builder.BuildTopLevel(instances, hal.BuildPreferFastTrace)
	if err != nil {
		return err
	}
	defer tlas.Destroy(device)
	device.SetAccelerationStructureName(tlas.AccelerationStructure, "scene")

	fmt.Fprintf(out, "top level: %d instances, %d bytes\n", len(instances), tlas.AccelerationStructure.Size())

	for i := range instances {
		ray := soft.Ray{
			Origin:    [3]float32{float32(i*instanceSpacing) + 0.5, 0.25, -5},
			Direction: [3]float32{0, 0, 1},
			TMax:      1000,
			CullMask:  0xff,
		}

		hit, ok, err := device.TraceRay(tlas.AccelerationStructure, ray)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Newf("ray %d missed its instance", i)
		}

		a.logger.Debug("cube::trace", slog.Int("ray", i), slog.Float64("t", float64(hit.T)))
		fmt.Fprintf(out, "ray %d: hit instance %d primitive %d at t=%.3f\n",
			i, hit.InstanceCustomIndex, hit.PrimitiveIndex, hit.T)
	}

	if options.stats {
		fmt.Fprintln(out, device.BuildStatsString(true))
	}
	return nil
}
