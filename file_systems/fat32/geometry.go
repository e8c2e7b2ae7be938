package fat32

// FirstDataCluster is the lowest cluster number that addresses the data region.
// Clusters 0 and 1 are reserved by the format.
const FirstDataCluster ClusterID = 2

// FATEntrySize is the size of a single FAT32 table entry, in bytes.
const FATEntrySize = 4

// Geometry holds the boot sector fields needed to locate structures on the
// volume. It never changes after the volume is opened.
type Geometry struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	SectorsPerFAT     uint32
	RootCluster       ClusterID
}

// FirstDataSector gives the absolute sector where cluster 2 begins.
func (g Geometry) FirstDataSector() uint64 {
	return uint64(g.ReservedSectors) + uint64(g.NumFATs)*uint64(g.SectorsPerFAT)
}

// BytesPerCluster gives the size of a single cluster, in bytes.
func (g Geometry) BytesPerCluster() int {
	return int(g.BytesPerSector) * int(g.SectorsPerCluster)
}

// OffsetOf returns the absolute byte offset of the first byte of `cluster`.
// Clusters below 2 are treated as cluster 2.
//
// The result is not bounds-checked against any image; callers must do that
// before dereferencing it.
func (g Geometry) OffsetOf(cluster ClusterID) int64 {
	if cluster < FirstDataCluster {
		cluster = FirstDataCluster
	}

	sector := g.FirstDataSector() + uint64(cluster-FirstDataCluster)*uint64(g.SectorsPerCluster)
	return int64(sector * uint64(g.BytesPerSector))
}

// FATOffset returns the absolute byte offset of FAT copy `index`, counting
// from 0.
func (g Geometry) FATOffset(index int) int64 {
	sector := uint64(g.ReservedSectors) + uint64(index)*uint64(g.SectorsPerFAT)
	return int64(sector * uint64(g.BytesPerSector))
}

// FATEntryCount is the number of 4-byte entries in a single copy of the FAT.
func (g Geometry) FATEntryCount() uint64 {
	return uint64(g.SectorsPerFAT) * uint64(g.BytesPerSector) / FATEntrySize
}

// LastClusterWithin returns the highest cluster whose data lies entirely
// inside an image of `imageSize` bytes. The boolean is false if not even
// cluster 2 fits.
func (g Geometry) LastClusterWithin(imageSize int64) (ClusterID, bool) {
	dataStart := g.OffsetOf(FirstDataCluster)
	bytesPerCluster := int64(g.BytesPerCluster())

	if imageSize-dataStart < bytesPerCluster {
		return 0, false
	}

	fittingClusters := (imageSize - dataStart) / bytesPerCluster
	return FirstDataCluster + ClusterID(fittingClusters-1), true
}
