package fat32

import (
	"fmt"
	"io"
	"time"
)

// FileRecord is one file to place into the image's root directory.
type FileRecord struct {
	// Name is converted to 8.3 form (upper-cased, truncated to
	// 8+3 characters around the last dot).
	Name string

	Data []byte

	// ModTime is encoded into the directory entry's write
	// timestamp. The zero value leaves the timestamp fields zero.
	ModTime time.Time
}

// An Option adjusts identification fields of the volume.
type Option func(*Builder)

// WithVolumeLabel sets the 11-byte volume label (space-padded,
// truncated).
func WithVolumeLabel(label string) Option {
	return func(b *Builder) { b.label = label }
}

// WithOEMName sets the 8-byte OEM name in the boot sector.
func WithOEMName(name string) Option {
	return func(b *Builder) { b.oemName = name }
}

// WithVolumeID sets the volume serial number.
func WithVolumeID(id uint32) Option {
	return func(b *Builder) { b.volumeID = id }
}

// WithLayout overrides the structural constants (sectors per cluster,
// reserved sectors, FAT count) used to plan the geometry.
func WithLayout(layout Layout) Option {
	return func(b *Builder) { b.layout = layout }
}

// Builder assembles a FAT32 image. Files are added with AddFile, which
// performs all allocation up front; WriteTo then produces the image in
// a single sequential pass. A Builder is single-use and not safe for
// concurrent use; concurrent builds each need their own Builder.
type Builder struct {
	layout   Layout
	label    string
	oemName  string
	volumeID uint32

	geo   Geometry
	alloc *allocator
	root  *rootDirectory
	files []placedFile
	names map[string]bool
}

// placedFile is a file whose cluster chain has been allocated.
type placedFile struct {
	name  string
	data  []byte
	chain []uint32
}

// New plans the geometry for an image of sizeBytes bytes and reserves
// cluster 2 for the root directory. It fails with a *GeometryError if
// the size cannot hold a minimum viable volume.
func New(sizeBytes int64, opts ...Option) (*Builder, error) {
	b := &Builder{
		layout:   DefaultLayout,
		label:    "NO NAME",
		oemName:  "MSWIN4.1",
		volumeID: 0x12345678,
		names:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	geo, err := Plan(sizeBytes, b.layout)
	if err != nil {
		return nil, err
	}
	b.geo = geo
	b.alloc = newAllocator(geo)
	b.root = newRootDirectory(geo.ClusterSize())

	// The root directory always gets cluster 2 and never grows.
	chain, err := b.alloc.allocate("/", 1)
	if err != nil {
		return nil, err
	}
	if chain[0] != firstDataCluster {
		return nil, fmt.Errorf("root directory allocated cluster %d, want %d", chain[0], firstDataCluster)
	}
	return b, nil
}

// Geometry returns the planned volume geometry.
func (b *Builder) Geometry() Geometry {
	return b.geo
}

// AddFile allocates a cluster chain and a root directory entry for
// the file. Zero-length files still occupy one cluster. Errors
// (*DirectoryFullError, *AllocationError) surface here, before any
// image bytes exist.
func (b *Builder) AddFile(f FileRecord) error {
	if uint64(len(f.Data)) > 0xFFFFFFFF {
		return fmt.Errorf("%q is %d bytes, exceeding the FAT32 file size limit", f.Name, len(f.Data))
	}
	base, ext := splitName83(f.Name)
	shortName := base
	if ext != "" {
		shortName += "." + ext
	}
	if b.names[shortName] {
		return fmt.Errorf("duplicate file name %q in root directory", shortName)
	}
	if b.root.used >= b.root.capacity() {
		return &DirectoryFullError{File: f.Name, Capacity: b.root.capacity()}
	}

	chain, err := b.alloc.allocate(f.Name, clustersFor(len(f.Data), b.geo.ClusterSize()))
	if err != nil {
		return err
	}
	entry := newDirEntry(f.Name, AttrArchive, chain[0], uint32(len(f.Data)), f.ModTime)
	if err := b.root.add(f.Name, entry); err != nil {
		return err
	}
	b.names[shortName] = true
	b.files = append(b.files, placedFile{name: f.Name, data: f.Data, chain: chain})
	return nil
}

// WriteTo writes the image to w in one pass: boot sector, FSInfo
// sector, zero padding to the end of the reserved region, the FAT
// copies, the root directory cluster, each file's clusters in
// allocation order, and zero fill up to the exact image size. On a
// write error the sink holds a partial image; the caller discards it.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	sectorSize := int(b.geo.BytesPerSector)

	boot, err := newBootSector(b.geo, b.oemName, b.label, b.volumeID).encode()
	if err != nil {
		return cw.n, err
	}
	if _, err := cw.Write(boot); err != nil {
		return cw.n, fmt.Errorf("write boot sector: %w", err)
	}

	fsinfo, err := newFSInfoSector(b.alloc.next).encode(sectorSize)
	if err != nil {
		return cw.n, err
	}
	if _, err := cw.Write(fsinfo); err != nil {
		return cw.n, fmt.Errorf("write FSInfo sector: %w", err)
	}

	reservedPad := int64(b.geo.ReservedSectors-2) * int64(sectorSize)
	if err := writeZeros(cw, reservedPad); err != nil {
		return cw.n, fmt.Errorf("write reserved region: %w", err)
	}

	fatRegion := b.alloc.encode()
	for i := 0; i < int(b.geo.NumFATs); i++ {
		if _, err := cw.Write(fatRegion); err != nil {
			return cw.n, fmt.Errorf("write FAT copy %d: %w", i+1, err)
		}
	}

	if _, err := cw.Write(b.root.buf); err != nil {
		return cw.n, fmt.Errorf("write root directory: %w", err)
	}

	for _, f := range b.files {
		if _, err := cw.Write(f.data); err != nil {
			return cw.n, fmt.Errorf("write %q: %w", f.name, err)
		}
		// The chain covers at least one cluster even for empty
		// files; pad the final cluster out to its boundary.
		pad := int64(len(f.chain))*int64(b.geo.ClusterSize()) - int64(len(f.data))
		if err := writeZeros(cw, pad); err != nil {
			return cw.n, fmt.Errorf("pad %q: %w", f.name, err)
		}
	}

	if err := writeZeros(cw, b.geo.Size()-cw.n); err != nil {
		return cw.n, fmt.Errorf("zero-fill data region: %w", err)
	}
	return cw.n, nil
}

// Build produces a complete image in one call: plan the geometry for
// sizeBytes, place every file, write the image to w.
func Build(w io.Writer, sizeBytes int64, files []FileRecord, opts ...Option) error {
	b, err := New(sizeBytes, opts...)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := b.AddFile(f); err != nil {
			return err
		}
	}
	_, err = b.WriteTo(w)
	return err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (n int, err error) {
	n, err = cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

var zeros [64 * 1024]byte

func writeZeros(w io.Writer, n int64) error {
	for n > 0 {
		chunk := n
		if chunk > int64(len(zeros)) {
			chunk = int64(len(zeros))
		}
		if _, err := w.Write(zeros[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
