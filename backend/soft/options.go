package soft

// CreateOptions configures a software device
type CreateOptions struct {
	// ExternallySynchronized drops the mutex guarding the device's object tables. Only set it when every
	// call into the device, including Destroy calls, comes from one goroutine.
	ExternallySynchronized bool
	// HeapSizeLimits optionally caps each heap below the profile's size. A 0 entry means no cap.
	HeapSizeLimits []uint64
	// SubmissionQueueDepth is the number of submissions that may wait for the worker before Submit
	// blocks. Defaults to 64.
	SubmissionQueueDepth int
}

const defaultSubmissionQueueDepth = 64
