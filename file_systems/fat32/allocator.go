package fat32

import (
	"encoding/binary"
	"fmt"

	"github.com/dargueta/fatshell"
)

const (
	// FirstAllocatableCluster is where the free-cluster scan begins. Entries 0
	// and 1 are reserved, and 2 is normally the root directory.
	FirstAllocatableCluster ClusterID = 3

	// EndOfChain marks a cluster as the last one in its chain.
	EndOfChain uint32 = 0x0FFFFFFF

	// ClusterMask selects the bits of a FAT32 entry that hold the cluster
	// number. The top four bits are reserved.
	ClusterMask uint32 = 0x0FFFFFFF
)

// lastAllocatableCluster gives the highest cluster that has both a FAT entry
// and a data region inside the image.
func (v *Volume) lastAllocatableCluster() (ClusterID, bool) {
	entries := v.geometry.FATEntryCount()
	if entries == 0 {
		return 0, false
	}

	last, ok := v.geometry.LastClusterWithin(v.Size())
	if !ok {
		return 0, false
	}
	if uint64(last) > entries-1 {
		last = ClusterID(entries - 1)
	}
	return last, true
}

// AllocateCluster claims the first free cluster, marking it as the end of a
// chain in every copy of the FAT, and returns its number. Only a single
// cluster is ever claimed; chains are never extended.
//
// If no free cluster exists it fails with [fatshell.ErrNoSpaceOnDevice].
func (v *Volume) AllocateCluster() (ClusterID, error) {
	if err := v.checkWritable("allocate a cluster"); err != nil {
		return 0, err
	}

	last, ok := v.lastAllocatableCluster()
	if ok {
		fatStart := v.geometry.FATOffset(0)

		for cluster := FirstAllocatableCluster; cluster <= last; cluster++ {
			entry, err := v.slice(fatStart+int64(cluster)*FATEntrySize, FATEntrySize)
			if err != nil {
				return 0, err
			}

			if binary.LittleEndian.Uint32(entry)&ClusterMask != 0 {
				continue
			}

			if err = v.setFATEntry(cluster, EndOfChain); err != nil {
				return 0, err
			}
			return cluster, nil
		}
	}

	return 0, fatshell.ErrNoSpaceOnDevice.WithMessage(
		fmt.Sprintf("no free cluster in the FAT at or after cluster %d", FirstAllocatableCluster))
}

// setFATEntry writes `value` into the entry for `cluster` in every copy of the
// FAT. Nothing is written unless all copies are inside the image. The first
// FAT is always written, even if the boot sector claims there are none.
func (v *Volume) setFATEntry(cluster ClusterID, value uint32) error {
	copies := int(v.geometry.NumFATs)
	if copies == 0 {
		copies = 1
	}

	offsets := make([]int64, 0, copies)
	for i := 0; i < copies; i++ {
		offset := v.geometry.FATOffset(i) + int64(cluster)*FATEntrySize
		if err := v.checkRange(offset, FATEntrySize); err != nil {
			return err
		}
		offsets = append(offsets, offset)
	}

	encoded := make([]byte, FATEntrySize)
	binary.LittleEndian.PutUint32(encoded, value)

	for _, offset := range offsets {
		if err := v.write(offset, encoded); err != nil {
			return err
		}
	}
	return nil
}
