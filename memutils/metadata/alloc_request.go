package metadata

// AllocationRequestType is an enum that indicates the type of allocation that is being made.
// It is returned in AllocationRequest from CreateAllocationRequest
type AllocationRequestType uint32

const (
	// AllocationRequestBump indicates that the allocation request was sourced from metadata.BumpBlockMetadata
	// and will be placed at the current cursor
	AllocationRequestBump AllocationRequestType = iota
	// AllocationRequestFreeList indicates that the allocation request was sourced from
	// metadata.FreeListBlockMetadata and will be carved out of an existing free region
	AllocationRequestFreeList
)

var allocationRequestMapping = map[AllocationRequestType]string{
	AllocationRequestBump:     "Bump",
	AllocationRequestFreeList: "FreeList",
}

func (t AllocationRequestType) String() string {
	return allocationRequestMapping[t]
}

// AllocationRequest is a type returned from BlockMetadata.CreateAllocationRequest which indicates where and how
// the metadata intends to allocate new memory. The allocation is committed to the metadata with
// BlockMetadata.Alloc
type AllocationRequest struct {
	// BlockAllocationHandle is a numeric handle used to identify individual allocations within the metadata
	BlockAllocationHandle BlockAllocationHandle
	// Offset is the aligned offset within the block that the allocation will begin at
	Offset int
	// Size the total size of the allocation, maybe larger than what was originally requested
	Size int
	// Type identifies the sort of allocation this request represents (and can be used
	// to identify the BlockMetadata implementation used to generate this request).
	Type AllocationRequestType

	// AlgorithmData is arbitrary data used by the BlockMetadata implementation for internal
	// purposes
	AlgorithmData uint64
}
