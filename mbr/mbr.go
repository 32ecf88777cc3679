// Package mbr encodes a Master Boot Record with a single FAT32 LBA
// partition, so a bare filesystem image can be wrapped into a
// partitioned disk image.
package mbr

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// TypeFAT32LBA is the partition type for FAT32 with LBA
	// addressing.
	TypeFAT32LBA = 0x0C

	// PartitionStartLBA is where the partition begins. 2048
	// sectors (1 MiB) is the conventional alignment gap.
	PartitionStartLBA = 2048

	signature = uint16(0xAA55)
)

// partitionEntry is the on-disk layout of one of the four 16-byte
// partition table slots.
type partitionEntry struct {
	Status   uint8
	FirstCHS [3]byte
	Type     uint8
	LastCHS  [3]byte
	FirstLBA uint32
	Sectors  uint32
}

// lbaOnlyCHS marks a CHS field as invalid, forcing LBA addressing.
var lbaOnlyCHS = [3]byte{0xFE, 0xFF, 0xFF}

// Configure returns a 512-byte MBR whose first partition covers
// fsSectors sectors starting at PartitionStartLBA. The boot code
// region stays zero; the record only carves up the disk.
func Configure(fsSectors uint32) ([]byte, error) {
	if fsSectors == 0 {
		return nil, fmt.Errorf("partition must cover at least one sector")
	}
	buf := bytes.NewBuffer(make([]byte, 0, 512))
	buf.Write(make([]byte, 446)) // boot code + disk id, unused
	entries := [4]partitionEntry{{
		FirstCHS: lbaOnlyCHS,
		Type:     TypeFAT32LBA,
		LastCHS:  lbaOnlyCHS,
		FirstLBA: PartitionStartLBA,
		Sectors:  fsSectors,
	}}
	// Writes into a bytes.Buffer never fail.
	binary.Write(buf, binary.LittleEndian, &entries)
	binary.Write(buf, binary.LittleEndian, signature)
	if buf.Len() != 512 {
		return nil, fmt.Errorf("encoded MBR is %d bytes, want 512", buf.Len())
	}
	return buf.Bytes(), nil
}
