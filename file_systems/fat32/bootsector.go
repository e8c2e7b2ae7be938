// Package fat32 implements access to FAT32 volumes held entirely in memory.
//
// Only the first cluster of every file and directory is ever used; cluster
// chains in the FAT are never followed.
package fat32

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/dargueta/fatshell"
)

type ClusterID uint32

// BootSectorSize is the number of bytes at the start of the image that hold the
// boot sector, including the trailing signature.
const BootSectorSize = 512

// BootSignature is the value of the last two bytes of a valid boot sector.
var BootSignature = [2]byte{0x55, 0xAA}

// RawBootSector is the on-disk representation of the FAT32 boot sector, up to
// and including the file system type string at offset 82.
type RawBootSector struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	Media             uint8
	SectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
	SectorsPerFAT32   uint32
	ExtFlags          uint16
	FSVersion         uint16
	RootCluster       uint32
	FSInfoSector      uint16
	BackupBootSector  uint16
	Reserved          [12]byte
	DriveNumber       uint8
	NTReserved        uint8
	ExBootSignature   uint8
	VolumeID          uint32
	VolumeLabel       [11]byte
	FileSystemType    [8]byte
}

// BootSector extends RawBootSector with the geometry derived from it.
type BootSector struct {
	RawBootSector
	Geometry Geometry
}

// ParseBootSector decodes the boot sector at the beginning of `data`.
//
// The only validation performed is the boot signature check and the nonzero
// sector and cluster sizes that offset arithmetic depends on. Anything else
// that's wrong with the image surfaces later as out-of-range errors.
func ParseBootSector(data []byte) (*BootSector, error) {
	if len(data) < BootSectorSize {
		return nil, fatshell.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf(
				"image too small for a boot sector: need %d bytes, got %d",
				BootSectorSize,
				len(data)))
	}

	if data[510] != BootSignature[0] || data[511] != BootSignature[1] {
		return nil, fatshell.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf(
				"not a FAT volume: boot signature is %#02x %#02x, expected 0x55 0xaa",
				data[510],
				data[511]))
	}

	raw := RawBootSector{}
	err := binary.Read(bytes.NewReader(data[:BootSectorSize]), binary.LittleEndian, &raw)
	if err != nil {
		return nil, fatshell.ErrIOFailed.Wrap(err)
	}

	if raw.BytesPerSector == 0 {
		return nil, fatshell.ErrInvalidFileSystem.WithMessage("bytes per sector is 0")
	}
	if raw.SectorsPerCluster == 0 {
		return nil, fatshell.ErrInvalidFileSystem.WithMessage("sectors per cluster is 0")
	}

	return &BootSector{
		RawBootSector: raw,
		Geometry: Geometry{
			BytesPerSector:    raw.BytesPerSector,
			SectorsPerCluster: raw.SectorsPerCluster,
			ReservedSectors:   raw.ReservedSectors,
			NumFATs:           raw.NumFATs,
			SectorsPerFAT:     raw.SectorsPerFAT32,
			RootCluster:       ClusterID(raw.RootCluster),
		},
	}, nil
}

// TotalSectors gives the size of the volume in sectors, taken from whichever
// of the 16- and 32-bit fields is in use.
func (bs *BootSector) TotalSectors() uint32 {
	if bs.TotalSectors16 != 0 {
		return uint32(bs.TotalSectors16)
	}
	return bs.TotalSectors32
}

// Label returns the volume label with trailing padding removed.
func (bs *BootSector) Label() string {
	return strings.TrimRight(string(bs.VolumeLabel[:]), " \x00")
}

func (bs *BootSector) OEM() string {
	return strings.TrimRight(string(bs.OEMName[:]), " \x00")
}
