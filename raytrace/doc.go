// Package raytrace holds backend-independent helpers for the acceleration structure workflow: padded
// host uploads, dedicated and suballocated structure storage, one-shot builds and compaction.
package raytrace
