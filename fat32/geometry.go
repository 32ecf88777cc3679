package fat32

import "fmt"

// Layout holds the structural constants of a volume. They are fixed
// before any geometry is derived and never change during a build.
type Layout struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
}

// DefaultLayout is the layout used by New unless overridden:
// 512-byte sectors, 8 sectors per cluster, 32 reserved sectors and
// two copies of the FAT.
var DefaultLayout = Layout{
	BytesPerSector:    512,
	SectorsPerCluster: 8,
	ReservedSectors:   32,
	NumFATs:           2,
}

// ClusterSize returns the size of one cluster in bytes.
func (l Layout) ClusterSize() int {
	return int(l.BytesPerSector) * int(l.SectorsPerCluster)
}

// fatEntriesPerSector is how many 32-bit FAT entries fit in one sector.
func (l Layout) fatEntriesPerSector() uint32 {
	return uint32(l.BytesPerSector) / 4
}

// Geometry describes the derived on-disk shape of a volume. It is
// computed once by Plan and read-only afterwards.
type Geometry struct {
	Layout

	// TotalSectors is the image size in sectors.
	TotalSectors uint32

	// TotalClusters is the cluster count the FAT is sized for:
	// floor((TotalSectors - ReservedSectors) / SectorsPerCluster).
	TotalClusters uint32

	// SectorsPerFAT is the size of one FAT copy in sectors,
	// ceil(TotalClusters / (BytesPerSector/4)).
	SectorsPerFAT uint32

	// DataStartSector is the first sector of the data region:
	// ReservedSectors + NumFATs*SectorsPerFAT. Cluster 2 starts here.
	DataStartSector uint32
}

// GeometryError reports a requested image size that cannot hold a
// minimum viable volume (reserved region, one FAT sector and the root
// directory cluster), or is not sector-aligned.
type GeometryError struct {
	Size   int64 // requested image size in bytes
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("cannot plan FAT32 geometry for %d bytes: %s", e.Size, e.Reason)
}

// Plan derives the volume geometry for an image of sizeBytes bytes.
// All arithmetic is integer; SectorsPerFAT rounds up so the FAT always
// covers every cluster, including clusters created by rounding.
func Plan(sizeBytes int64, layout Layout) (Geometry, error) {
	if layout.BytesPerSector != 512 {
		return Geometry{}, &GeometryError{
			Size:   sizeBytes,
			Reason: fmt.Sprintf("unsupported sector size %d, only 512 is supported", layout.BytesPerSector),
		}
	}
	if layout.SectorsPerCluster == 0 || layout.NumFATs == 0 {
		return Geometry{}, &GeometryError{
			Size:   sizeBytes,
			Reason: "layout needs at least one sector per cluster and one FAT",
		}
	}
	if layout.ReservedSectors < 2 {
		return Geometry{}, &GeometryError{
			Size:   sizeBytes,
			Reason: "the reserved region must cover the boot and FSInfo sectors",
		}
	}
	bps := int64(layout.BytesPerSector)
	if sizeBytes <= 0 || sizeBytes%bps != 0 {
		return Geometry{}, &GeometryError{
			Size:   sizeBytes,
			Reason: fmt.Sprintf("size must be a positive multiple of the sector size (%d)", bps),
		}
	}
	totalSectors := sizeBytes / bps
	if totalSectors > 0xFFFFFFFF {
		return Geometry{}, &GeometryError{
			Size:   sizeBytes,
			Reason: "size exceeds the 32-bit sector count limit",
		}
	}

	g := Geometry{
		Layout:       layout,
		TotalSectors: uint32(totalSectors),
	}
	if g.TotalSectors <= uint32(layout.ReservedSectors) {
		return Geometry{}, &GeometryError{
			Size:   sizeBytes,
			Reason: fmt.Sprintf("no sectors left after the %d reserved sectors", layout.ReservedSectors),
		}
	}
	g.TotalClusters = (g.TotalSectors - uint32(layout.ReservedSectors)) / uint32(layout.SectorsPerCluster)
	perSector := layout.fatEntriesPerSector()
	g.SectorsPerFAT = (g.TotalClusters + perSector - 1) / perSector
	g.DataStartSector = uint32(layout.ReservedSectors) + uint32(layout.NumFATs)*g.SectorsPerFAT

	// The root directory needs cluster 2 to exist, so at least one
	// full cluster must fit behind the reserved region and the FATs.
	if g.SectorsPerFAT == 0 || g.DataClusters() < 1 {
		return Geometry{}, &GeometryError{
			Size:   sizeBytes,
			Reason: "too small for the reserved region, one FAT sector and one data cluster",
		}
	}
	return g, nil
}

// DataClusters returns how many clusters physically fit into the data
// region. This is the allocation bound: it is always tighter than
// TotalClusters, which counts from the end of the reserved region and
// therefore includes the sectors occupied by the FATs themselves.
func (g Geometry) DataClusters() uint32 {
	if g.DataStartSector >= g.TotalSectors {
		return 0
	}
	return (g.TotalSectors - g.DataStartSector) / uint32(g.SectorsPerCluster)
}

// maxCluster is the highest allocatable cluster number. Clusters 0 and
// 1 are reserved, so the data region spans clusters 2..maxCluster. The
// FAT entry capacity also bounds it: when TotalClusters fills the FAT
// region exactly, the two reserved entries displace the topmost
// clusters, which then have no encodable FAT entry.
func (g Geometry) maxCluster() uint32 {
	max := firstDataCluster + g.DataClusters() - 1
	if cap := g.SectorsPerFAT * g.fatEntriesPerSector(); max > cap-1 {
		max = cap - 1
	}
	return max
}

// ClusterOffset returns the byte offset of the given cluster within
// the image. Cluster numbering starts at 2 at DataStartSector.
func (g Geometry) ClusterOffset(cluster uint32) int64 {
	sector := int64(g.DataStartSector) + int64(cluster-firstDataCluster)*int64(g.SectorsPerCluster)
	return sector * int64(g.BytesPerSector)
}

// Size returns the image size in bytes.
func (g Geometry) Size() int64 {
	return int64(g.TotalSectors) * int64(g.BytesPerSector)
}
