package fat32

import (
	"fmt"
	"strings"

	"github.com/dargueta/fatshell"
)

// DirtyCallback is called with the byte range of every in-place modification
// made to the image.
type DirtyCallback func(offset int64, length int)

type Option func(*Volume)

// WithReadOnly makes every operation that would modify the image fail with
// [fatshell.ErrReadOnlyFileSystem].
func WithReadOnly() Option {
	return func(v *Volume) {
		v.readOnly = true
	}
}

// WithDirtyCallback registers a function that's told about every modified byte
// range, so that the owner of the image can write back only what changed.
func WithDirtyCallback(callback DirtyCallback) Option {
	return func(v *Volume) {
		v.onDirty = callback
	}
}

// Volume gives access to a FAT32 file system stored in a byte slice. The volume
// takes exclusive ownership of the slice: all modifications are made in place,
// and it's up to the caller to persist the slice once it's done with the
// volume.
//
// A Volume is not safe for concurrent use.
type Volume struct {
	data       []byte
	bootSector *BootSector
	geometry   Geometry
	readOnly   bool
	onDirty    DirtyCallback
}

// Open mounts the volume stored in `image`. It fails with
// [fatshell.ErrInvalidFileSystem] if the boot sector is missing or invalid.
func Open(image []byte, options ...Option) (*Volume, error) {
	bootSector, err := ParseBootSector(image)
	if err != nil {
		return nil, err
	}

	volume := &Volume{
		data:       image,
		bootSector: bootSector,
		geometry:   bootSector.Geometry,
	}
	for _, option := range options {
		option(volume)
	}
	return volume, nil
}

func (v *Volume) Geometry() Geometry {
	return v.geometry
}

func (v *Volume) BootSector() BootSector {
	return *v.bootSector
}

// RootCluster is the first cluster of the root directory.
func (v *Volume) RootCluster() ClusterID {
	return v.geometry.RootCluster
}

func (v *Volume) ReadOnly() bool {
	return v.readOnly
}

// Size returns the size of the backing image, in bytes.
func (v *Volume) Size() int64 {
	return int64(len(v.data))
}

// Info returns a human-readable summary of the volume.
func (v *Volume) Info() string {
	g := v.geometry
	lines := []string{
		"Info:",
		fmt.Sprintf(" - OEM Name: %s", v.bootSector.OEM()),
		fmt.Sprintf(" - Volume Label: %s", v.bootSector.Label()),
		fmt.Sprintf(" - Volume ID: %08X", v.bootSector.VolumeID),
		fmt.Sprintf(" - Sector Size: %d", g.BytesPerSector),
		fmt.Sprintf(" - Sectors Per Cluster: %d", g.SectorsPerCluster),
		fmt.Sprintf(" - Cluster Size: %d bytes", g.BytesPerCluster()),
		fmt.Sprintf(" - Reserved Sectors: %d", g.ReservedSectors),
		fmt.Sprintf(" - FAT Count: %d", g.NumFATs),
		fmt.Sprintf(" - Sectors Per FAT: %d", g.SectorsPerFAT),
		fmt.Sprintf(" - Total Sectors: %d", v.bootSector.TotalSectors()),
		fmt.Sprintf(" - Root Cluster: %d", g.RootCluster),
	}
	return strings.Join(lines, "\n")
}

// directoryCluster maps the cluster stored in a directory entry to the cluster
// the directory actually lives in. Entries pointing at cluster 0 (typically
// `..` in a first-level subdirectory) refer to the root.
func (v *Volume) directoryCluster(cluster ClusterID) ClusterID {
	if cluster == 0 {
		return v.geometry.RootCluster
	}
	return cluster
}

// checkRange verifies that `length` bytes starting at `offset` are inside the
// image.
func (v *Volume) checkRange(offset int64, length int) error {
	size := int64(len(v.data))
	if offset < 0 || length < 0 || offset > size || int64(length) > size-offset {
		return fatshell.ErrResultOutOfRange.WithMessage(
			fmt.Sprintf(
				"can't access %d bytes at offset %d; image is %d bytes",
				length,
				offset,
				size))
	}
	return nil
}

// slice returns a view of `length` bytes of the image starting at `offset`. The
// returned slice must not be modified; use write() instead.
func (v *Volume) slice(offset int64, length int) ([]byte, error) {
	err := v.checkRange(offset, length)
	if err != nil {
		return nil, err
	}
	return v.data[offset : offset+int64(length)], nil
}

// write copies `src` into the image at `offset` and reports the range as
// dirty.
func (v *Volume) write(offset int64, src []byte) error {
	err := v.checkRange(offset, len(src))
	if err != nil {
		return err
	}

	copy(v.data[offset:], src)
	if v.onDirty != nil {
		v.onDirty(offset, len(src))
	}
	return nil
}

func (v *Volume) checkWritable(operation string) error {
	if v.readOnly {
		return fatshell.ErrReadOnlyFileSystem.WithMessage(
			fmt.Sprintf("can't %s: volume is mounted read-only", operation))
	}
	return nil
}
