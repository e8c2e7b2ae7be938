package fat32

import (
	"fmt"

	"github.com/dargueta/fatshell"
)

// MaxDirentSlots caps the number of slots searched for a free directory entry.
const MaxDirentSlots = 64

// findFreeSlot returns the offset of the first reusable slot in a directory:
// either a deleted entry or the end-of-directory marker. The boolean is true
// if the slot is the end-of-directory marker.
func (v *Volume) findFreeSlot(directory ClusterID) (int64, bool, error) {
	start := v.geometry.OffsetOf(directory)
	limit := v.slotsPerDirectory(MaxDirentSlots)

	for slot := 0; slot < limit; slot++ {
		offset := start + int64(slot)*DirentSize
		record, err := v.slice(offset, DirentSize)
		if err != nil {
			return 0, false, err
		}

		switch record[0] {
		case DirentEndOfDirectory:
			return offset, true, nil
		case DirentDeleted:
			return offset, false, nil
		}
	}

	return 0, false, fatshell.ErrDirectoryFull.WithMessage(
		fmt.Sprintf("no free slot in the first %d entries of cluster %d", limit, directory))
}

// WriteDirent installs a file entry for `name` in the first free slot of
// `directory`, pointing at `cluster` and `size` bytes long.
//
// Existing entries with the same name are not detected; writing a name twice
// gives two entries.
func (v *Volume) WriteDirent(directory ClusterID, name string, cluster ClusterID, size uint32) error {
	if err := v.checkWritable("write a directory entry"); err != nil {
		return err
	}

	encodedName, err := FilenameToBytes(name)
	if err != nil {
		return err
	}

	offset, isEnd, err := v.findFreeSlot(directory)
	if err != nil {
		return err
	}

	raw := RawDirent{
		AttributeFlags:   AttrArchived,
		FirstClusterHigh: uint16(cluster >> 16),
		FirstClusterLow:  uint16(cluster & 0xFFFF),
		FileSize:         size,
	}
	copy(raw.Name[:], encodedName[:8])
	copy(raw.Extension[:], encodedName[8:])

	if err = v.write(offset, raw.Bytes()); err != nil {
		return err
	}

	if isEnd {
		return v.terminateAfter(directory, offset)
	}
	return nil
}

// terminateAfter makes sure the slot following `offset` ends the directory,
// since the end marker at `offset` was just overwritten. Bytes past the old
// marker are not guaranteed to be zeroed.
func (v *Volume) terminateAfter(directory ClusterID, offset int64) error {
	next := offset + DirentSize
	dirEnd := v.geometry.OffsetOf(directory) + int64(v.slotsPerDirectory(MaxDirentsPerScan))*DirentSize
	if next >= dirEnd {
		return nil
	}

	record, err := v.slice(next, 1)
	if err != nil {
		// The directory ends exactly at the end of the image; there's no slot
		// to terminate.
		return nil
	}
	if record[0] == DirentEndOfDirectory {
		return nil
	}
	return v.write(next, []byte{DirentEndOfDirectory})
}
