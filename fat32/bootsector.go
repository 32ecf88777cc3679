package fat32

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// mediaFixed is the media descriptor for fixed (non-removable)
	// media, directly from the FAT specification.
	mediaFixed = uint8(0xF8)

	// extBootSignature marks the extended BPB fields (volume ID,
	// label and file system type) as present.
	extBootSignature = uint8(0x29)

	// sectorSignature is the mandatory trailer of the boot and
	// FSInfo sectors, 0x55 0xAA on disk.
	sectorSignature = uint16(0xAA55)

	fsInfoLeadSignature   = uint32(0x41615252)
	fsInfoStructSignature = uint32(0x61417272)

	// fsInfoFreeUnknown reports the free cluster count as unknown,
	// telling drivers to compute it themselves.
	fsInfoFreeUnknown = uint32(0xFFFFFFFF)
)

// bootSector is the on-disk layout of sector 0: jump code, BIOS
// Parameter Block, FAT32 extension and the boot code region. Field
// order and widths match the byte layout exactly, so the struct can be
// serialized with binary.Write without any offset arithmetic.
type bootSector struct {
	JumpBoot            [3]byte
	OEMName             [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   uint8
	ReservedSectorCount uint16
	NumFATs             uint8
	RootEntryCount      uint16 // 0 on FAT32
	TotalSectors16      uint16 // 0 on FAT32, see TotalSectors32
	Media               uint8
	FATSize16           uint16 // 0 on FAT32, see FATSize32
	SectorsPerTrack     uint16
	NumHeads            uint16
	HiddenSectors       uint32
	TotalSectors32      uint32
	FATSize32           uint32
	ExtFlags            uint16
	FSVersion           uint16
	RootCluster         uint32
	FSInfoSector        uint16
	BackupBootSector    uint16
	Reserved            [12]byte
	DriveNumber         uint8
	NTReserved          uint8
	BootSignature       uint8
	VolumeID            uint32
	VolumeLabel         [11]byte
	FileSystemType      [8]byte
	BootCode            [420]byte
	Signature           uint16
}

// newBootSector fills in a boot sector for the given geometry. The
// root directory lives in cluster 2, the FSInfo sector at index 1 and
// the (unwritten) backup boot sector slot at index 6. Sectors-per-track
// and head count are the conventional 63/255: nothing reads them on
// LBA-addressed media, but formatters emit them anyway.
func newBootSector(g Geometry, oemName string, label string, volumeID uint32) *bootSector {
	bs := &bootSector{
		JumpBoot:            [3]byte{0xEB, 0x58, 0x90},
		BytesPerSector:      g.BytesPerSector,
		SectorsPerCluster:   g.SectorsPerCluster,
		ReservedSectorCount: g.ReservedSectors,
		NumFATs:             g.NumFATs,
		Media:               mediaFixed,
		SectorsPerTrack:     63,
		NumHeads:            255,
		TotalSectors32:      g.TotalSectors,
		FATSize32:           g.SectorsPerFAT,
		RootCluster:         firstDataCluster,
		FSInfoSector:        1,
		BackupBootSector:    6,
		DriveNumber:         0x80,
		BootSignature:       extBootSignature,
		VolumeID:            volumeID,
		Signature:           sectorSignature,
	}
	copy(bs.OEMName[:], padded(oemName, len(bs.OEMName)))
	copy(bs.VolumeLabel[:], padded(label, len(bs.VolumeLabel)))
	copy(bs.FileSystemType[:], padded("FAT32", len(bs.FileSystemType)))
	return bs
}

// padded returns s right-padded with ASCII spaces to n bytes,
// truncating if s is longer.
func padded(s string, n int) []byte {
	b := bytes.Repeat([]byte{' '}, n)
	copy(b, s)
	return b
}

func (bs *bootSector) encode() ([]byte, error) {
	return encodeSector(bs, int(bs.BytesPerSector))
}

// parseBootSector decodes the BPB out of an encoded boot sector. The
// builder never reads images; this exists so the planned geometry can
// be verified against what actually landed on disk.
func parseBootSector(sector []byte) (*bootSector, error) {
	var bs bootSector
	if err := binary.Read(bytes.NewReader(sector), binary.LittleEndian, &bs); err != nil {
		return nil, fmt.Errorf("boot sector too short: %v", err)
	}
	if bs.Signature != sectorSignature {
		return nil, fmt.Errorf("invalid boot sector signature %#04x, want %#04x", bs.Signature, sectorSignature)
	}
	return &bs, nil
}

// geometry reconstructs the volume geometry from the BPB fields.
func (bs *bootSector) geometry() Geometry {
	return Geometry{
		Layout: Layout{
			BytesPerSector:    bs.BytesPerSector,
			SectorsPerCluster: bs.SectorsPerCluster,
			ReservedSectors:   bs.ReservedSectorCount,
			NumFATs:           bs.NumFATs,
		},
		TotalSectors:    bs.TotalSectors32,
		TotalClusters:   (bs.TotalSectors32 - uint32(bs.ReservedSectorCount)) / uint32(bs.SectorsPerCluster),
		SectorsPerFAT:   bs.FATSize32,
		DataStartSector: uint32(bs.ReservedSectorCount) + uint32(bs.NumFATs)*bs.FATSize32,
	}
}

// fsInfoSector is the on-disk layout of sector 1. The free cluster
// count is advisory; it is reported as unknown and drivers recount.
type fsInfoSector struct {
	LeadSignature   uint32
	Reserved1       [480]byte
	StructSignature uint32
	FreeClusters    uint32
	NextFree        uint32
	Reserved2       [14]byte
	Signature       uint16
}

func newFSInfoSector(nextFree uint32) *fsInfoSector {
	return &fsInfoSector{
		LeadSignature:   fsInfoLeadSignature,
		StructSignature: fsInfoStructSignature,
		FreeClusters:    fsInfoFreeUnknown,
		NextFree:        nextFree,
		Signature:       sectorSignature,
	}
}

func (fs *fsInfoSector) encode(sectorSize int) ([]byte, error) {
	return encodeSector(fs, sectorSize)
}

// encodeSector serializes a packed sector struct and checks that the
// result is exactly one sector long, catching layout drift at the
// single place sectors are produced instead of as a corrupt image.
func encodeSector(v interface{}, sectorSize int) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	if buf.Len() != sectorSize {
		return nil, fmt.Errorf("encoded %T is %d bytes, want %d", v, buf.Len(), sectorSize)
	}
	return buf.Bytes(), nil
}
