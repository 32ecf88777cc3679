package fat32_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/liteos/fatimg/fat32"
)

const (
	sectorSize  = 512
	clusterSize = 8 * sectorSize
)

func buildImage(t *testing.T, size int64, files []fat32.FileRecord, opts ...fat32.Option) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := fat32.Build(&buf, size, files, opts...); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fatEntry reads FAT entry n from the first FAT copy.
func fatEntry(img []byte, g fat32.Geometry, n uint32) uint32 {
	fatStart := int(g.ReservedSectors) * sectorSize
	return binary.LittleEndian.Uint32(img[fatStart+int(n)*4:])
}

func TestBuildHelloScenario(t *testing.T) {
	t.Parallel()

	payload := []byte("Hello from the FAT32 builder!\n") // 30 bytes
	img := buildImage(t, 64*1024*1024, []fat32.FileRecord{
		{Name: "hello.txt", Data: payload},
	})

	if got, want := len(img), 64*1024*1024; got != want {
		t.Fatalf("image is %d bytes, want %d", got, want)
	}

	b, err := fat32.New(64 * 1024 * 1024)
	if err != nil {
		t.Fatal(err)
	}
	g := b.Geometry()

	// FAT chains: cluster 2 is the root directory, cluster 3 the
	// single-cluster file, both terminated.
	for _, tt := range []struct {
		entry uint32
		want  uint32
	}{
		{0, 0x0FFFFFF8},
		{1, 0x0FFFFFFF},
		{2, 0x0FFFFFFF},
		{3, 0x0FFFFFFF},
		{4, 0},
	} {
		if got := fatEntry(img, g, tt.entry); got != tt.want {
			t.Errorf("FAT[%d]: got %#x, want %#x", tt.entry, got, tt.want)
		}
	}

	// The root directory holds exactly one entry, pointing at
	// cluster 3 with the payload length.
	rootStart := int(g.DataStartSector) * sectorSize
	entry := img[rootStart : rootStart+32]
	if got, want := string(entry[0:11]), "HELLO   TXT"; got != want {
		t.Errorf("directory entry name: got %q, want %q", got, want)
	}
	le := binary.LittleEndian
	if got := le.Uint16(entry[26:]); got != 3 {
		t.Errorf("starting cluster: got %d, want 3", got)
	}
	if got := le.Uint16(entry[20:]); got != 0 {
		t.Errorf("starting cluster high half: got %d, want 0", got)
	}
	if got := le.Uint32(entry[28:]); got != 30 {
		t.Errorf("size field: got %d, want 30", got)
	}
	if !bytes.Equal(img[rootStart+32:rootStart+clusterSize], make([]byte, clusterSize-32)) {
		t.Error("unused root directory tail is not zero")
	}

	// Cluster 3 carries the payload, zero-padded to the cluster
	// boundary.
	dataStart := rootStart + clusterSize
	if diff := cmp.Diff(payload, img[dataStart:dataStart+30]); diff != "" {
		t.Errorf("file payload: diff (-want +got):\n%s", diff)
	}
	if !bytes.Equal(img[dataStart+30:dataStart+clusterSize], make([]byte, clusterSize-30)) {
		t.Error("file cluster padding is not zero")
	}
}

func TestBuildFATCopiesIdentical(t *testing.T) {
	t.Parallel()

	img := buildImage(t, 64*1024*1024, []fat32.FileRecord{
		{Name: "a.bin", Data: bytes.Repeat([]byte{0xAB}, 3*clusterSize+7)},
		{Name: "b.bin", Data: []byte("x")},
	})
	b, err := fat32.New(64 * 1024 * 1024)
	if err != nil {
		t.Fatal(err)
	}
	g := b.Geometry()

	fatBytes := int(g.SectorsPerFAT) * sectorSize
	fat1Start := int(g.ReservedSectors) * sectorSize
	fat1 := img[fat1Start : fat1Start+fatBytes]
	fat2 := img[fat1Start+fatBytes : fat1Start+2*fatBytes]
	if !bytes.Equal(fat1, fat2) {
		t.Fatal("second FAT copy differs from the first")
	}
}

func TestBuildChainWalk(t *testing.T) {
	t.Parallel()

	// A file of 3 clusters + 1 byte must walk exactly 4 FAT steps
	// from its directory entry to the end-of-chain marker.
	data := bytes.Repeat([]byte{0x5A}, 3*clusterSize+1)
	img := buildImage(t, 64*1024*1024, []fat32.FileRecord{{Name: "big.bin", Data: data}})
	b, err := fat32.New(64 * 1024 * 1024)
	if err != nil {
		t.Fatal(err)
	}
	g := b.Geometry()

	rootStart := int(g.DataStartSector) * sectorSize
	le := binary.LittleEndian
	cluster := uint32(le.Uint16(img[rootStart+20:]))<<16 | uint32(le.Uint16(img[rootStart+26:]))
	if cluster != 3 {
		t.Fatalf("chain starts at cluster %d, want 3", cluster)
	}

	steps := 0
	for cluster != 0x0FFFFFFF {
		cluster = fatEntry(img, g, cluster)
		steps++
		if steps > 10 {
			t.Fatal("chain did not terminate")
		}
	}
	if steps != 4 {
		t.Fatalf("chain has %d clusters, want 4", steps)
	}
}

func TestBuildClusterBoundarySizes(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		size int
		want uint32 // clusters occupied
	}{
		{clusterSize, 1},
		{clusterSize + 1, 2},
	} {
		tt := tt
		t.Run(fmt.Sprintf("%d bytes", tt.size), func(t *testing.T) {
			t.Parallel()
			img := buildImage(t, 64*1024*1024, []fat32.FileRecord{
				{Name: "f.bin", Data: make([]byte, tt.size)},
				{Name: "after.bin", Data: []byte("y")},
			})
			b, err := fat32.New(64 * 1024 * 1024)
			if err != nil {
				t.Fatal(err)
			}
			g := b.Geometry()

			// The follow-up file starts right after f.bin's
			// chain, pinning down how many clusters f.bin
			// received.
			second := img[int(g.DataStartSector)*sectorSize+32 : int(g.DataStartSector)*sectorSize+64]
			got := uint32(binary.LittleEndian.Uint16(second[26:]))
			if want := 3 + tt.want; got != want {
				t.Errorf("second file starts at cluster %d, want %d", got, want)
			}
		})
	}
}

func TestBuildAtFATCapacityBoundary(t *testing.T) {
	t.Parallel()

	// 1056 sectors put TotalClusters at exactly one FAT sector's
	// worth of entries; the topmost data cluster has no encodable
	// FAT entry and must never be handed out.
	const size = 1056 * sectorSize

	b, err := fat32.New(size)
	if err != nil {
		t.Fatal(err)
	}
	err = b.AddFile(fat32.FileRecord{Name: "big.bin", Data: make([]byte, 126*clusterSize)})
	var ae *fat32.AllocationError
	if !errors.As(err, &ae) {
		t.Fatalf("got %v, want an AllocationError", err)
	}

	// The largest file that does fit must yield a chain whose
	// every link, end-of-chain marker included, lies inside FAT
	// copy 1.
	data := make([]byte, 125*clusterSize)
	img := buildImage(t, size, []fat32.FileRecord{{Name: "big.bin", Data: data}})
	b, err = fat32.New(size)
	if err != nil {
		t.Fatal(err)
	}
	g := b.Geometry()

	fatStart := int(g.ReservedSectors) * sectorSize
	fatEnd := fatStart + int(g.SectorsPerFAT)*sectorSize
	le := binary.LittleEndian
	rootStart := int(g.DataStartSector) * sectorSize
	cluster := uint32(le.Uint16(img[rootStart+20:]))<<16 | uint32(le.Uint16(img[rootStart+26:]))

	steps := 0
	for cluster != 0x0FFFFFFF {
		offset := fatStart + int(cluster)*4
		if offset+4 > fatEnd {
			t.Fatalf("chain reached cluster %d, whose FAT entry lies outside FAT copy 1", cluster)
		}
		cluster = le.Uint32(img[offset:])
		steps++
		if steps > 200 {
			t.Fatal("chain did not terminate")
		}
	}
	if steps != 125 {
		t.Fatalf("chain has %d clusters, want 125", steps)
	}
}

func TestBuildEmptyFile(t *testing.T) {
	t.Parallel()

	img := buildImage(t, 64*1024*1024, []fat32.FileRecord{
		{Name: "empty.txt"},
		{Name: "next.txt", Data: []byte("z")},
	})
	b, err := fat32.New(64 * 1024 * 1024)
	if err != nil {
		t.Fatal(err)
	}
	g := b.Geometry()

	rootStart := int(g.DataStartSector) * sectorSize
	le := binary.LittleEndian
	// The empty file still owns cluster 3; its size field is 0.
	if got := le.Uint32(img[rootStart+28:]); got != 0 {
		t.Errorf("empty file size field: got %d, want 0", got)
	}
	if got := le.Uint16(img[rootStart+26:]); got != 3 {
		t.Errorf("empty file cluster: got %d, want 3", got)
	}
	if got := le.Uint16(img[rootStart+32+26:]); got != 4 {
		t.Errorf("next file cluster: got %d, want 4", got)
	}
	if got := fatEntry(img, g, 3); got != 0x0FFFFFFF {
		t.Errorf("FAT[3]: got %#x, want end of chain", got)
	}
}

func TestBuildModTime(t *testing.T) {
	t.Parallel()

	modTime := time.Date(2024, 5, 17, 12, 30, 44, 0, time.UTC)
	img := buildImage(t, 64*1024*1024, []fat32.FileRecord{
		{Name: "t.txt", Data: []byte("x"), ModTime: modTime},
	})
	b, err := fat32.New(64 * 1024 * 1024)
	if err != nil {
		t.Fatal(err)
	}
	rootStart := int(b.Geometry().DataStartSector) * sectorSize
	le := binary.LittleEndian
	wantTime := uint16(12)<<11 | uint16(30)<<5 | uint16(44/2)
	wantDate := uint16(2024-1980)<<9 | uint16(5)<<5 | uint16(17)
	if got := le.Uint16(img[rootStart+22:]); got != wantTime {
		t.Errorf("write time: got %#x, want %#x", got, wantTime)
	}
	if got := le.Uint16(img[rootStart+24:]); got != wantDate {
		t.Errorf("write date: got %#x, want %#x", got, wantDate)
	}
}

func TestBuildDirectoryFull(t *testing.T) {
	t.Parallel()

	// 1 MiB leaves plenty of data clusters but the root directory
	// still holds only clusterSize/32 = 128 entries.
	b, err := fat32.New(1024 * 1024)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 128; i++ {
		if err := b.AddFile(fat32.FileRecord{Name: fmt.Sprintf("f%d.txt", i)}); err != nil {
			t.Fatal(err)
		}
	}
	err = b.AddFile(fat32.FileRecord{Name: "once.too"})
	var dfe *fat32.DirectoryFullError
	if !errors.As(err, &dfe) {
		t.Fatalf("got %v, want a DirectoryFullError", err)
	}
}

func TestBuildAllocationError(t *testing.T) {
	t.Parallel()

	// The minimum viable volume has a single data cluster, which
	// the root directory takes.
	b, err := fat32.New(42 * sectorSize)
	if err != nil {
		t.Fatal(err)
	}
	err = b.AddFile(fat32.FileRecord{Name: "any.txt", Data: []byte("x")})
	var ae *fat32.AllocationError
	if !errors.As(err, &ae) {
		t.Fatalf("got %v, want an AllocationError", err)
	}
}

func TestBuildGeometryError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := fat32.Build(&buf, 16*1024, nil)
	var ge *fat32.GeometryError
	if !errors.As(err, &ge) {
		t.Fatalf("got %v, want a GeometryError", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("%d bytes written despite the geometry error", buf.Len())
	}
}

func TestBuildDuplicateName(t *testing.T) {
	t.Parallel()

	b, err := fat32.New(1024 * 1024)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.AddFile(fat32.FileRecord{Name: "hello.txt"}); err != nil {
		t.Fatal(err)
	}
	// Truncation maps this onto the same 8.3 name.
	if err := b.AddFile(fat32.FileRecord{Name: "HELLO.txt"}); err == nil {
		t.Fatal("duplicate 8.3 name accepted")
	}
}

func TestBuildEmptyVolume(t *testing.T) {
	t.Parallel()

	img := buildImage(t, 1024*1024, nil, fat32.WithVolumeLabel("EMPTY"))
	if got, want := len(img), 1024*1024; got != want {
		t.Fatalf("image is %d bytes, want %d", got, want)
	}
	if got := binary.LittleEndian.Uint16(img[510:]); got != 0xAA55 {
		t.Fatalf("boot signature: got %#x", got)
	}
	if got, want := string(img[71:82]), "EMPTY      "; got != want {
		t.Fatalf("volume label: got %q, want %q", got, want)
	}
}
