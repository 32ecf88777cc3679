package fat32

import (
	"encoding/binary"
	"fmt"
)

const (
	// firstDataCluster is the lowest valid data cluster. Entries 0
	// and 1 of the FAT carry the media descriptor and file system
	// state instead of chain links.
	firstDataCluster = uint32(2)

	// endOfChain marks the last cluster of a chain in the FAT.
	endOfChain = uint32(0x0FFFFFFF)

	// fatID is the value of FAT entry 0: the media descriptor in
	// the low byte, ones above.
	fatID = uint32(0x0FFFFF00) | uint32(mediaFixed)
)

// AllocationError reports that a cluster chain cannot be allocated
// because the data region is exhausted. It is returned before any
// image bytes are written.
type AllocationError struct {
	File      string // name of the file whose chain did not fit
	Needed    uint32 // clusters required by the chain
	Available uint32 // free clusters remaining in the data region
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("cannot allocate %d clusters for %q: only %d free data clusters left",
		e.Needed, e.File, e.Available)
}

// allocator is the cluster arena: one FAT entry per cluster the FAT
// covers, handed out by a monotonically increasing cursor starting at
// cluster 2. A cluster belongs to exactly one chain once allocated;
// nothing is ever freed, the build is one-shot.
type allocator struct {
	geo Geometry
	fat []uint32
	// next is the lowest never-allocated cluster.
	next uint32
}

func newAllocator(geo Geometry) *allocator {
	fat := make([]uint32, int(firstDataCluster)+int(geo.TotalClusters))
	fat[0] = fatID
	fat[1] = endOfChain
	return &allocator{
		geo:  geo,
		fat:  fat,
		next: firstDataCluster,
	}
}

// free returns how many unallocated clusters remain in the data region.
func (a *allocator) free() uint32 {
	if a.next > a.geo.maxCluster() {
		return 0
	}
	return a.geo.maxCluster() - a.next + 1
}

// allocate reserves a chain of n consecutive clusters for the named
// file and links it in the FAT, the last cluster getting the
// end-of-chain marker. The bound is the data region capacity, not
// TotalClusters: the FAT is sized generously by the ceiling division
// and covers clusters that have no sectors behind them.
func (a *allocator) allocate(name string, n uint32) (chain []uint32, err error) {
	if n == 0 {
		return nil, nil
	}
	if n > a.free() {
		return nil, &AllocationError{File: name, Needed: n, Available: a.free()}
	}
	chain = make([]uint32, n)
	for i := range chain {
		chain[i] = a.next + uint32(i)
	}
	for i, c := range chain[:len(chain)-1] {
		a.fat[c] = chain[i+1]
	}
	a.fat[chain[len(chain)-1]] = endOfChain
	a.next += n
	return chain, nil
}

// encode serializes the FAT into one region of SectorsPerFAT sectors.
// Entries past the last allocated cluster stay zero (free). The caller
// writes the identical region once per FAT copy.
func (a *allocator) encode() []byte {
	buf := make([]byte, int(a.geo.SectorsPerFAT)*int(a.geo.BytesPerSector))
	entries := a.fat
	// The region is sized for TotalClusters entries; the two
	// reserved entries can push the slice past that when the count
	// divides evenly into sectors. maxCluster is capped at the
	// entry capacity, so anything clamped off here is beyond the
	// last allocatable cluster and always zero.
	if max := len(buf) / 4; len(entries) > max {
		entries = entries[:max]
	}
	for i, entry := range entries {
		binary.LittleEndian.PutUint32(buf[i*4:], entry)
	}
	return buf
}

// clustersFor returns how many clusters a payload of size bytes
// occupies: ceil(size / clusterSize), and at least one so that even an
// empty file owns a cluster for its directory entry to point at.
func clustersFor(size int, clusterSize int) uint32 {
	if size <= 0 {
		return 1
	}
	return uint32((size + clusterSize - 1) / clusterSize)
}
