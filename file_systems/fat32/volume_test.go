package fat32_test

import (
	"bytes"
	"testing"

	"github.com/dargueta/fatshell"
	"github.com/dargueta/fatshell/file_systems/fat32"
	fstest "github.com/dargueta/fatshell/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen__NotFAT(t *testing.T) {
	_, err := fat32.Open(make([]byte, 4096))
	assert.ErrorIs(t, err, fatshell.ErrInvalidFileSystem)
}

func TestCreateFile__ThenRead(t *testing.T) {
	image := fstest.NewDefaultFAT32Image(t)
	// Stale bytes in the cluster that's about to be claimed.
	copy(image.Data[image.ClusterOffset(3):], bytes.Repeat([]byte{0xCC}, 512))
	volume := openVolume(t, image)

	require.NoError(t, volume.CreateFile(2, "a.txt", []byte("hi")))

	contents, err := volume.ReadFile(2, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), contents)

	dirent, err := volume.Lookup(2, "A.TXT")
	require.NoError(t, err)
	assert.EqualValues(t, 3, dirent.FirstCluster)
	assert.EqualValues(t, 2, dirent.Size())
	assert.EqualValues(t, fat32.EndOfChain, image.FATEntry(0, 3))
	assert.EqualValues(t, fat32.EndOfChain, image.FATEntry(1, 3))

	clusterData := image.Data[image.ClusterOffset(3) : image.ClusterOffset(3)+512]
	assert.Equal(t, make([]byte, 510), clusterData[2:], "rest of cluster not zeroed")
}

func TestCreateFile__InSubdirectory(t *testing.T) {
	image := fstest.NewDefaultFAT32Image(t)
	image.AddDirectory(2, 0, "SUB        ", 3)
	volume := openVolume(t, image)

	location, err := volume.Resolve(2, "/sub/note.txt")
	require.NoError(t, err)
	require.NoError(t, volume.CreateFile(location.Directory, location.Leaf, []byte("inside")))

	contents, err := volume.ReadFile(3, "note.txt")
	require.NoError(t, err)
	assert.Equal(t, "inside", string(contents))

	_, err = volume.ReadFile(2, "note.txt")
	assert.ErrorIs(t, err, fatshell.ErrNotFound)
}

func TestCreateFile__Empty(t *testing.T) {
	volume := openVolume(t, fstest.NewDefaultFAT32Image(t))

	require.NoError(t, volume.CreateFile(2, "empty", nil))
	contents, err := volume.ReadFile(2, "empty")
	require.NoError(t, err)
	assert.Empty(t, contents)
}

func TestCreateFile__ExactlyOneCluster(t *testing.T) {
	volume := openVolume(t, fstest.NewDefaultFAT32Image(t))
	data := bytes.Repeat([]byte("x"), 512)

	require.NoError(t, volume.CreateFile(2, "full.bin", data))
	contents, err := volume.ReadFile(2, "full.bin")
	require.NoError(t, err)
	assert.Equal(t, data, contents)
}

func TestCreateFile__TooLarge(t *testing.T) {
	image := fstest.NewDefaultFAT32Image(t)
	volume := openVolume(t, image)

	err := volume.CreateFile(2, "big.bin", make([]byte, 513))
	assert.ErrorIs(t, err, fatshell.ErrFileTooLarge)
	assert.EqualValues(t, 0, image.FATEntry(0, 3), "cluster claimed for rejected file")
}

// A failure to add the directory entry must not leak a cluster.
func TestCreateFile__DirectoryFullDoesNotAllocate(t *testing.T) {
	image := fstest.NewDefaultFAT32Image(t)
	for slot := 0; slot < 16; slot++ {
		image.PutDirent(2, slot, "FILE    TXT", 0x20, 10, 0)
	}
	volume := openVolume(t, image)

	err := volume.CreateFile(2, "x.txt", []byte("x"))
	assert.ErrorIs(t, err, fatshell.ErrDirectoryFull)
	assert.EqualValues(t, 0, image.FATEntry(0, 3))

	err = volume.CreateFile(2, "waytoolong.txt", []byte("x"))
	assert.ErrorIs(t, err, fatshell.ErrNameTooLong)
	assert.EqualValues(t, 0, image.FATEntry(0, 3))
}

func TestCreateFile__NoSpace(t *testing.T) {
	image := fstest.NewDefaultFAT32Image(t)
	image.FillFAT(3)
	volume := openVolume(t, image)

	err := volume.CreateFile(2, "x.txt", []byte("x"))
	assert.ErrorIs(t, err, fatshell.ErrNoSpaceOnDevice)

	dirents, err := volume.List(2)
	require.NoError(t, err)
	assert.Empty(t, dirents)
}

func TestReadFile__Errors(t *testing.T) {
	image := fstest.NewDefaultFAT32Image(t)
	image.AddDirectory(2, 0, "SUB        ", 3)
	// Cluster 1817 is the last one in the image; 1024 bytes overruns it.
	image.PutDirent(2, 1, "OVERRUN BIN", 0x20, 1817, 1024)
	volume := openVolume(t, image)

	_, err := volume.ReadFile(2, "sub")
	assert.ErrorIs(t, err, fatshell.ErrIsADirectory)

	_, err = volume.ReadFile(2, "missing.txt")
	assert.ErrorIs(t, err, fatshell.ErrNotFound)

	_, err = volume.ReadFile(2, "overrun.bin")
	assert.ErrorIs(t, err, fatshell.ErrResultOutOfRange)
}

// The returned contents must be a copy, not a view of the image.
func TestReadFile__ReturnsCopy(t *testing.T) {
	image := fstest.NewDefaultFAT32Image(t)
	image.AddFile(2, 0, "DATA    BIN", 3, []byte{1, 2, 3})
	volume := openVolume(t, image)

	contents, err := volume.ReadFile(2, "data.bin")
	require.NoError(t, err)
	contents[0] = 99
	assert.EqualValues(t, 1, image.Data[image.ClusterOffset(3)])
}

func TestVolume__ReadOnly(t *testing.T) {
	image := fstest.NewDefaultFAT32Image(t)
	image.AddFile(2, 0, "DATA    BIN", 3, []byte{1, 2, 3})
	before := append([]byte(nil), image.Data...)
	volume := openVolume(t, image, fat32.WithReadOnly())
	assert.True(t, volume.ReadOnly())

	err := volume.CreateFile(2, "x.txt", []byte("x"))
	assert.ErrorIs(t, err, fatshell.ErrReadOnlyFileSystem)

	err = volume.WriteDirent(2, "x.txt", 3, 1)
	assert.ErrorIs(t, err, fatshell.ErrReadOnlyFileSystem)

	contents, err := volume.ReadFile(2, "data.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, contents)
	assert.Equal(t, before, image.Data)
}

type byteRange struct {
	Offset int64
	Length int
}

func TestVolume__DirtyCallback(t *testing.T) {
	image := fstest.NewDefaultFAT32Image(t)
	ranges := []byteRange{}
	volume := openVolume(
		t,
		image,
		fat32.WithDirtyCallback(func(offset int64, length int) {
			ranges = append(ranges, byteRange{offset, length})
		}),
	)

	require.NoError(t, volume.CreateFile(2, "a.txt", []byte("hi")))

	assert.ElementsMatch(
		t,
		[]byteRange{
			{Offset: 16384 + 3*4, Length: 4},
			{Offset: 67584 + 3*4, Length: 4},
			{Offset: 119296, Length: 512},
			{Offset: 118784, Length: 32},
		},
		ranges,
	)
}

func TestVolume__Info(t *testing.T) {
	volume := openVolume(t, fstest.NewDefaultFAT32Image(t))
	info := volume.Info()

	assert.Contains(t, info, "Info:")
	assert.Contains(t, info, " - Sector Size: 512")
	assert.Contains(t, info, " - Sectors Per Cluster: 1")
	assert.Contains(t, info, " - Reserved Sectors: 32")
	assert.Contains(t, info, " - FAT Count: 2")
	assert.Contains(t, info, " - Sectors Per FAT: 100")
	assert.Contains(t, info, " - Root Cluster: 2")
	assert.Contains(t, info, " - Volume Label: TESTVOLUME")
	assert.Contains(t, info, " - Volume ID: 1234ABCD")
}
