package testing

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// ImageLayout describes the geometry of a FAT32 image built by [NewFAT32Image].
type ImageLayout struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	SectorsPerFAT     uint32
	RootCluster       uint32
	TotalSectors      uint32
}

// DefaultLayout gives a 1 MiB image with 512-byte sectors and clusters, 32
// reserved sectors, and two FATs of 100 sectors each. The root directory is at
// cluster 2, which begins at byte 118784.
func DefaultLayout() ImageLayout {
	return ImageLayout{
		BytesPerSector:    512,
		SectorsPerCluster: 1,
		ReservedSectors:   32,
		NumFATs:           2,
		SectorsPerFAT:     100,
		RootCluster:       2,
		TotalSectors:      2048,
	}
}

// BytesPerCluster gives the size of a single cluster, in bytes.
func (layout ImageLayout) BytesPerCluster() int {
	return int(layout.BytesPerSector) * int(layout.SectorsPerCluster)
}

// TestModifiedDate and TestModifiedTime are stamped on every directory entry
// the image builder writes: 2023-05-17 13:45:30.
const (
	TestModifiedDate = uint16((2023-1980)<<9 | 5<<5 | 17)
	TestModifiedTime = uint16(13<<11 | 45<<5 | 30/2)
)

// FAT32Image is a FAT32 volume built in memory for tests. Data is the full
// image and may be modified directly.
type FAT32Image struct {
	Layout ImageLayout
	Data   []byte
	t      *testing.T
}

// NewFAT32Image creates a zeroed image with a valid boot sector and FAT, and an
// empty root directory.
func NewFAT32Image(t *testing.T, layout ImageLayout) *FAT32Image {
	imageSize := int(layout.TotalSectors) * int(layout.BytesPerSector)
	require.GreaterOrEqual(t, imageSize, 512, "image must hold at least a boot sector")

	image := &FAT32Image{
		Layout: layout,
		Data:   make([]byte, imageSize),
		t:      t,
	}

	boot := image.Data
	copy(boot[0:3], []byte{0xEB, 0x58, 0x90})
	copy(boot[3:11], "MSWIN4.1")
	binary.LittleEndian.PutUint16(boot[11:13], layout.BytesPerSector)
	boot[13] = layout.SectorsPerCluster
	binary.LittleEndian.PutUint16(boot[14:16], layout.ReservedSectors)
	boot[16] = layout.NumFATs
	boot[21] = 0xF8
	binary.LittleEndian.PutUint32(boot[32:36], layout.TotalSectors)
	binary.LittleEndian.PutUint32(boot[36:40], layout.SectorsPerFAT)
	binary.LittleEndian.PutUint32(boot[44:48], layout.RootCluster)
	binary.LittleEndian.PutUint16(boot[48:50], 1)
	binary.LittleEndian.PutUint16(boot[50:52], 6)
	boot[64] = 0x80
	boot[66] = 0x29
	binary.LittleEndian.PutUint32(boot[67:71], 0x1234ABCD)
	copy(boot[71:82], "TESTVOLUME ")
	copy(boot[82:90], "FAT32   ")
	boot[510] = 0x55
	boot[511] = 0xAA

	image.SetFATEntry(0, 0x0FFFFFF8)
	image.SetFATEntry(1, 0x0FFFFFFF)
	image.SetFATEntry(layout.RootCluster, 0x0FFFFFFF)
	return image
}

// NewDefaultFAT32Image is shorthand for NewFAT32Image(t, DefaultLayout()).
func NewDefaultFAT32Image(t *testing.T) *FAT32Image {
	return NewFAT32Image(t, DefaultLayout())
}

// ClusterOffset gives the absolute offset of the first byte of `cluster`.
func (image *FAT32Image) ClusterOffset(cluster uint32) int {
	layout := image.Layout
	firstDataSector := int(layout.ReservedSectors) + int(layout.NumFATs)*int(layout.SectorsPerFAT)
	return (firstDataSector + int(cluster-2)*int(layout.SectorsPerCluster)) *
		int(layout.BytesPerSector)
}

func (image *FAT32Image) fatEntryOffset(copyIndex int, cluster uint32) int {
	layout := image.Layout
	fatStart := (int(layout.ReservedSectors) + copyIndex*int(layout.SectorsPerFAT)) *
		int(layout.BytesPerSector)
	return fatStart + int(cluster)*4
}

// SetFATEntry writes `value` into the entry for `cluster` in every FAT.
func (image *FAT32Image) SetFATEntry(cluster, value uint32) {
	for i := 0; i < int(image.Layout.NumFATs); i++ {
		offset := image.fatEntryOffset(i, cluster)
		require.LessOrEqual(image.t, offset+4, len(image.Data), "FAT entry %d out of bounds", cluster)
		binary.LittleEndian.PutUint32(image.Data[offset:offset+4], value)
	}
}

// FATEntry reads the entry for `cluster` from FAT number `copyIndex`.
func (image *FAT32Image) FATEntry(copyIndex int, cluster uint32) uint32 {
	offset := image.fatEntryOffset(copyIndex, cluster)
	return binary.LittleEndian.Uint32(image.Data[offset : offset+4])
}

// FillFAT marks every entry from `first` to the end of each FAT as used.
func (image *FAT32Image) FillFAT(first uint32) {
	totalEntries := uint32(image.Layout.SectorsPerFAT) * uint32(image.Layout.BytesPerSector) / 4
	for cluster := first; cluster < totalEntries; cluster++ {
		image.SetFATEntry(cluster, 0x0FFFFFFF)
	}
}

// SlotOffset gives the absolute offset of directory record `slot` in the
// directory at `directory`.
func (image *FAT32Image) SlotOffset(directory uint32, slot int) int {
	return image.ClusterOffset(directory) + slot*32
}

// PutRawDirent copies a 32-byte record into `slot` of `directory`.
func (image *FAT32Image) PutRawDirent(directory uint32, slot int, record []byte) {
	require.Len(image.t, record, 32, "directory records are 32 bytes")
	offset := image.SlotOffset(directory, slot)
	copy(image.Data[offset:offset+32], record)
}

// PutDirent writes a directory record into `slot` of `directory`. `rawName` is
// the eleven-character on-disk name, e.g. "FILE    TXT".
func (image *FAT32Image) PutDirent(
	directory uint32, slot int, rawName string, attributes uint8, firstCluster uint32, size uint32,
) {
	require.Len(image.t, rawName, 11, "on-disk names are exactly 11 bytes")

	record := make([]byte, 32)
	copy(record[0:11], rawName)
	record[11] = attributes
	binary.LittleEndian.PutUint16(record[20:22], uint16(firstCluster>>16))
	binary.LittleEndian.PutUint16(record[22:24], TestModifiedTime)
	binary.LittleEndian.PutUint16(record[24:26], TestModifiedDate)
	binary.LittleEndian.PutUint16(record[26:28], uint16(firstCluster&0xFFFF))
	binary.LittleEndian.PutUint32(record[28:32], size)
	image.PutRawDirent(directory, slot, record)
}

// AddFile writes `contents` into `cluster`, claims the cluster in the FAT, and
// adds an archive entry for it to `slot` of `directory`.
func (image *FAT32Image) AddFile(
	directory uint32, slot int, rawName string, cluster uint32, contents []byte,
) {
	require.LessOrEqual(
		image.t, len(contents), image.Layout.BytesPerCluster(), "file must fit in one cluster")

	offset := image.ClusterOffset(cluster)
	copy(image.Data[offset:], contents)
	image.SetFATEntry(cluster, 0x0FFFFFFF)
	image.PutDirent(directory, slot, rawName, 0x20, cluster, uint32(len(contents)))
}

// AddDirectory creates an empty subdirectory of `parent` in `cluster`, with "."
// and ".." entries. As on real volumes, ".." points to cluster 0 if the parent
// is the root directory.
func (image *FAT32Image) AddDirectory(parent uint32, slot int, rawName string, cluster uint32) {
	image.SetFATEntry(cluster, 0x0FFFFFFF)
	image.PutDirent(parent, slot, rawName, 0x10, cluster, 0)

	parentCluster := parent
	if parent == image.Layout.RootCluster {
		parentCluster = 0
	}
	image.PutDirent(cluster, 0, ".          ", 0x10, cluster, 0)
	image.PutDirent(cluster, 1, "..         ", 0x10, parentCluster, 0)
}

// Stream returns a stream over the image's data. Writes to the stream modify
// Data directly.
func (image *FAT32Image) Stream() io.ReadWriteSeeker {
	return bytesextra.NewReadWriteSeeker(image.Data)
}
