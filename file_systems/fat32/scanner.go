package fat32

// MaxDirentsPerScan caps the number of records a directory scan reads, so a
// directory with a missing or corrupted terminator can't run into unrelated
// data.
const MaxDirentsPerScan = 128

// DirentScanner iterates over the live entries of a directory. It reads the
// image lazily, one record per call to Next. Use it like a bufio.Scanner:
//
//	scanner := volume.Scan(cluster)
//	for scanner.Next() {
//		dirent := scanner.Dirent()
//		...
//	}
//	if err := scanner.Err(); err != nil {
//		...
//	}
type DirentScanner struct {
	volume  *Volume
	start   int64
	limit   int
	slot    int
	current Dirent
	err     error
	done    bool
}

// Scan returns a scanner over the directory whose first cluster is `cluster`.
// Only the first cluster of the directory is read.
func (v *Volume) Scan(cluster ClusterID) *DirentScanner {
	return &DirentScanner{
		volume: v,
		start:  v.geometry.OffsetOf(cluster),
		limit:  v.slotsPerDirectory(MaxDirentsPerScan),
	}
}

// slotsPerDirectory gives the number of directory records that fit in one
// cluster, capped at `limit`.
func (v *Volume) slotsPerDirectory(limit int) int {
	perCluster := v.geometry.BytesPerCluster() / DirentSize
	if perCluster < limit {
		return perCluster
	}
	return limit
}

// Next advances to the next live entry, skipping deleted entries, long file
// name fragments and the volume label. It returns false at the end of the
// directory, when the scan limit is reached, or on error.
func (s *DirentScanner) Next() bool {
	for !s.done {
		if s.slot >= s.limit {
			s.done = true
			break
		}

		slot := s.slot
		record, err := s.volume.slice(s.start+int64(slot)*DirentSize, DirentSize)
		if err != nil {
			s.err = err
			s.done = true
			break
		}
		s.slot++

		switch record[0] {
		case DirentEndOfDirectory:
			s.done = true
			continue
		case DirentDeleted:
			continue
		}

		attributes := record[11]
		if attributes == AttrLongName || attributes&AttrVolumeLabel != 0 {
			continue
		}

		raw := NewRawDirentFromBytes(record)
		s.current = NewDirentFromRaw(&raw, slot)
		return true
	}
	return false
}

// Dirent returns the entry found by the most recent call to Next.
func (s *DirentScanner) Dirent() Dirent {
	return s.current
}

// Err returns the error that stopped the scan, if any.
func (s *DirentScanner) Err() error {
	return s.err
}

// Reset rewinds the scanner to the beginning of the directory.
func (s *DirentScanner) Reset() {
	s.slot = 0
	s.current = Dirent{}
	s.err = nil
	s.done = false
}

// List returns all live entries of the directory at `cluster`.
func (v *Volume) List(cluster ClusterID) ([]Dirent, error) {
	dirents := []Dirent{}

	scanner := v.Scan(cluster)
	for scanner.Next() {
		dirents = append(dirents, scanner.Dirent())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return dirents, nil
}
