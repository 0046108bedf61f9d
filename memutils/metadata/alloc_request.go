package metadata

// AllocationRequest is returned from BlockMetadata.CreateAllocationRequest and indicates where the metadata
// intends to place new memory. Commit it with BlockMetadata.Alloc once the consumer is ready.
type AllocationRequest struct {
	// BlockAllocationHandle identifies the allocation once the request has been committed
	BlockAllocationHandle BlockAllocationHandle
	// Item is the offset and size the allocation will occupy
	Item Suballocation
	// Padding is the number of bytes skipped at the front of the chosen free region to satisfy alignment
	Padding uint64
}
