package fat32

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// Directory entry attribute bits.
const (
	AttrReadOnly = 0x01
	AttrHidden   = 0x02
	AttrSystem   = 0x04
	AttrArchive  = 0x20
)

// dirEntrySize is the fixed on-disk size of one directory entry.
const dirEntrySize = 32

// dirEntry is the on-disk layout of an 8.3 directory entry. The
// 32-bit starting cluster number is split across the high and low
// 16-bit halves, an artifact of FAT32 retrofitting the field into the
// FAT16 layout.
type dirEntry struct {
	Name           [8]byte
	Ext            [3]byte
	Attr           uint8
	NTReserved     uint8
	CreateTenths   uint8
	CreateTime     uint16
	CreateDate     uint16
	AccessDate     uint16
	FirstClusterHi uint16
	WriteTime      uint16
	WriteDate      uint16
	FirstClusterLo uint16
	Size           uint32
}

// newDirEntry builds the entry for a file starting at the given
// cluster. The name is converted to 8.3 form: upper-cased, split at
// the last dot, truncated to 8+3 and right-padded with spaces. A zero
// modTime leaves the timestamp fields zero.
func newDirEntry(name string, attr uint8, firstCluster uint32, size uint32, modTime time.Time) dirEntry {
	base, ext := splitName83(name)
	e := dirEntry{
		Attr:           attr,
		FirstClusterHi: uint16(firstCluster >> 16),
		FirstClusterLo: uint16(firstCluster),
		Size:           size,
	}
	copy(e.Name[:], padded(base, len(e.Name)))
	copy(e.Ext[:], padded(ext, len(e.Ext)))
	if !modTime.IsZero() {
		e.WriteTime, e.WriteDate = fatTimeDate(modTime.UTC())
	}
	return e
}

// splitName83 separates a filename into its upper-cased base name and
// extension. Names longer than 8 characters and extensions longer
// than 3 are truncated, matching conventional 8.3 behavior.
func splitName83(name string) (base, ext string) {
	base = strings.ToUpper(name)
	if idx := strings.LastIndexByte(base, '.'); idx >= 0 {
		base, ext = base[:idx], base[idx+1:]
	}
	if len(base) > 8 {
		base = base[:8]
	}
	if len(ext) > 3 {
		ext = ext[:3]
	}
	return base, ext
}

// fatTimeDate packs a timestamp into the FAT 16-bit time and date
// halves. Seconds are stored with 2-second granularity; years count
// from 1980.
func fatTimeDate(t time.Time) (fatTime, fatDate uint16) {
	fatTime = uint16(t.Hour())<<11 |
		uint16(t.Minute())<<5 |
		uint16(t.Second()/2)
	fatDate = uint16(t.Year()-1980)<<9 |
		uint16(t.Month())<<5 |
		uint16(t.Day())
	return fatTime, fatDate
}

func (e dirEntry) encode() []byte {
	var buf bytes.Buffer
	// binary.Write over a fixed-width struct cannot fail into a
	// bytes.Buffer; the length check guards the layout itself.
	binary.Write(&buf, binary.LittleEndian, e)
	if buf.Len() != dirEntrySize {
		panic(fmt.Sprintf("encoded directory entry is %d bytes, want %d", buf.Len(), dirEntrySize))
	}
	return buf.Bytes()
}

// DirectoryFullError reports that the root directory has no free
// entry slot left. The root directory is fixed at a single cluster,
// so its capacity is a hard ceiling.
type DirectoryFullError struct {
	File     string // name of the file that did not fit
	Capacity int    // total entry slots in the root directory
}

func (e *DirectoryFullError) Error() string {
	return fmt.Sprintf("cannot add %q to root directory: all %d entry slots in use", e.File, e.Capacity)
}

// rootDirectory is the single-cluster root directory: a fixed-size
// slate of 32-byte entries packed from offset 0, unused tail bytes
// zero.
type rootDirectory struct {
	buf  []byte
	used int
}

func newRootDirectory(clusterSize int) *rootDirectory {
	return &rootDirectory{buf: make([]byte, clusterSize)}
}

func (d *rootDirectory) capacity() int {
	return len(d.buf) / dirEntrySize
}

// add appends an entry at the next free slot.
func (d *rootDirectory) add(name string, e dirEntry) error {
	if d.used >= d.capacity() {
		return &DirectoryFullError{File: name, Capacity: d.capacity()}
	}
	copy(d.buf[d.used*dirEntrySize:], e.encode())
	d.used++
	return nil
}
