package fat32

import (
	"fmt"

	"github.com/dargueta/fatshell"
)

// ReadFile returns the contents of the file `name` in `directory`. It fails with
// [fatshell.ErrIsADirectory] if the name refers to a directory, and with
// [fatshell.ErrResultOutOfRange] if the file's data would lie past the end of
// the image.
func (v *Volume) ReadFile(directory ClusterID, name string) ([]byte, error) {
	dirent, err := v.Lookup(directory, name)
	if err != nil {
		return nil, err
	}
	if dirent.IsDir() {
		return nil, fatshell.ErrIsADirectory.WithMessage(
			fmt.Sprintf("can't read %q", name))
	}

	source, err := v.slice(v.geometry.OffsetOf(dirent.FirstCluster), int(dirent.size))
	if err != nil {
		return nil, err
	}

	contents := make([]byte, len(source))
	copy(contents, source)
	return contents, nil
}

// CreateFile stores `data` in a newly allocated cluster and adds an entry for
// it named `name` to `directory`. The data must fit in a single cluster, or
// this fails with [fatshell.ErrFileTooLarge].
//
// The name and the free directory slot are checked before the cluster is
// claimed, so a failure doesn't leak a cluster.
func (v *Volume) CreateFile(directory ClusterID, name string, data []byte) error {
	if err := v.checkWritable("create a file"); err != nil {
		return err
	}

	bytesPerCluster := v.geometry.BytesPerCluster()
	if len(data) > bytesPerCluster {
		return fatshell.ErrFileTooLarge.WithMessage(
			fmt.Sprintf(
				"%q is %d bytes but files can be at most one cluster (%d bytes)",
				name,
				len(data),
				bytesPerCluster))
	}

	if _, err := FilenameToBytes(name); err != nil {
		return err
	}
	if _, _, err := v.findFreeSlot(directory); err != nil {
		return err
	}

	cluster, err := v.AllocateCluster()
	if err != nil {
		return err
	}

	// Zero out the rest of the cluster so stale data from a previous owner
	// isn't left behind.
	clusterData := make([]byte, bytesPerCluster)
	copy(clusterData, data)
	if err = v.write(v.geometry.OffsetOf(cluster), clusterData); err != nil {
		return err
	}

	return v.WriteDirent(directory, name, cluster, uint32(len(data)))
}
