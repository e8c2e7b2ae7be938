// Package driver ties a FAT32 volume to the image file it lives in, and keeps
// track of the working directory for path-based access.
package driver

import (
	"errors"
	"fmt"
	"os"
	posixpath "path"
	"path/filepath"

	"github.com/dargueta/fatshell"
	"github.com/dargueta/fatshell/file_systems/common/blockcache"
	"github.com/dargueta/fatshell/file_systems/fat32"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// SectorSize is the unit the image file is cached and written back in. Images
// must be a nonzero multiple of this.
const SectorSize = 512

var _ fatshell.Driver = (*Session)(nil)

// Session is a mounted image with a working directory. All paths passed to it
// are slash-separated, and relative paths are resolved against the working
// directory.
//
// Changes are made in memory and written back to the image file by Flush or
// Close. A Session is not safe for concurrent use.
type Session struct {
	file           afero.File
	imagePath      string
	cache          *blockcache.BlockCache
	volume         *fat32.Volume
	mountFlags     fatshell.MountFlags
	logger         logrus.FieldLogger
	workingDir     fat32.ClusterID
	workingDirPath string
	closed         bool
}

// Open mounts the FAT32 image at `path` in `fs`. If `logger` is nil, the
// standard logrus logger is used.
func Open(
	fs afero.Fs,
	path string,
	mountFlags fatshell.MountFlags,
	logger logrus.FieldLogger,
) (*Session, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("image", path)

	if !mountFlags.CanRead() {
		return nil, fatshell.ErrInvalidArgument.WithMessage(
			"mount flags must allow reading the image")
	}

	osFlags := os.O_RDONLY
	if mountFlags.CanWrite() {
		osFlags = os.O_RDWR
	}

	file, err := fs.OpenFile(path, osFlags, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fatshell.ErrNotFound.WithMessage(
				fmt.Sprintf("can't open image %q", path))
		}
		return nil, fatshell.ErrIOFailed.Wrap(err)
	}

	session, err := mount(file, path, mountFlags, logger)
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			err = multierror.Append(err, closeErr)
		}
		return nil, err
	}
	return session, nil
}

func mount(
	file afero.File,
	path string,
	mountFlags fatshell.MountFlags,
	logger logrus.FieldLogger,
) (*Session, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, fatshell.ErrIOFailed.Wrap(err)
	}

	imageSize := stat.Size()
	if imageSize == 0 || imageSize%SectorSize != 0 {
		return nil, fatshell.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf(
				"image %q is %d bytes; it must be a nonzero multiple of %d",
				path,
				imageSize,
				SectorSize))
	}

	cache := blockcache.WrapStream(file, SectorSize, uint(imageSize/SectorSize))
	data, err := cache.Data()
	if err != nil {
		return nil, err
	}

	options := []fat32.Option{
		fat32.WithDirtyCallback(func(offset int64, length int) {
			markErr := cache.MarkByteRangeDirty(offset, length)
			if markErr != nil {
				logger.WithError(markErr).Errorf(
					"failed to track modification of %d bytes at %d", length, offset)
			}
		}),
	}
	if !mountFlags.CanWrite() {
		options = append(options, fat32.WithReadOnly())
	}

	volume, err := fat32.Open(data, options...)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"size":     imageSize,
		"readOnly": !mountFlags.CanWrite(),
	}).Debug("mounted image")

	return &Session{
		file:           file,
		imagePath:      path,
		cache:          cache,
		volume:         volume,
		mountFlags:     mountFlags,
		logger:         logger,
		workingDir:     volume.RootCluster(),
		workingDirPath: "/",
	}, nil
}

// NormalizePath converts `path` to an absolute slash-separated path with all
// "." and ".." components removed.
func (session *Session) NormalizePath(path string) string {
	path = posixpath.Clean(filepath.ToSlash(path))
	if path == "." {
		path = "/"
	}
	if posixpath.IsAbs(path) {
		return path
	}
	return posixpath.Join(session.workingDirPath, path)
}

// Volume gives direct access to the mounted volume.
func (session *Session) Volume() *fat32.Volume {
	return session.volume
}

func (session *Session) checkOpen() error {
	if session.closed {
		return fatshell.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("session for %q is closed", session.imagePath))
	}
	return nil
}

// directoryAt resolves `path` to the first cluster of the directory it names.
func (session *Session) directoryAt(path string) (fat32.ClusterID, error) {
	if err := session.checkOpen(); err != nil {
		return 0, err
	}
	return session.volume.ChangeDir(session.workingDir, filepath.ToSlash(path))
}

// fileLocation resolves `path` to the directory holding the file it names.
func (session *Session) fileLocation(path string) (fat32.Location, error) {
	if err := session.checkOpen(); err != nil {
		return fat32.Location{}, err
	}

	location, err := session.volume.Resolve(session.workingDir, filepath.ToSlash(path))
	if err != nil {
		return fat32.Location{}, err
	}
	if !location.HasLeaf() || location.Leaf == "." || location.Leaf == ".." {
		return fat32.Location{}, fatshell.ErrIsADirectory.WithMessage(
			session.NormalizePath(path))
	}
	return location, nil
}

// ReadDir returns the live entries of the directory at `path`, without the "."
// and ".." entries.
func (session *Session) ReadDir(path string) ([]os.FileInfo, error) {
	directory, err := session.directoryAt(path)
	if err != nil {
		return nil, err
	}

	dirents, err := session.volume.List(directory)
	if err != nil {
		return nil, err
	}

	output := make([]os.FileInfo, 0, len(dirents))
	for _, dirent := range dirents {
		name := dirent.Name()
		if name == "." || name == ".." {
			continue
		}
		output = append(output, dirent)
	}
	return output, nil
}

// ChangeDir sets the working directory to `path`. The working directory is
// left alone if this fails.
func (session *Session) ChangeDir(path string) error {
	directory, err := session.directoryAt(path)
	if err != nil {
		return err
	}

	session.workingDir = directory
	if directory == session.volume.RootCluster() {
		session.workingDirPath = "/"
	} else {
		session.workingDirPath = session.NormalizePath(path)
	}

	session.logger.WithFields(logrus.Fields{
		"path":    session.workingDirPath,
		"cluster": directory,
	}).Trace("changed directory")
	return nil
}

// WorkingDirectory returns the absolute path of the working directory.
func (session *Session) WorkingDirectory() string {
	return session.workingDirPath
}

// WorkingCluster returns the first cluster of the working directory.
func (session *Session) WorkingCluster() fat32.ClusterID {
	return session.workingDir
}

func (session *Session) ReadFile(path string) ([]byte, error) {
	location, err := session.fileLocation(path)
	if err != nil {
		return nil, err
	}
	return session.volume.ReadFile(location.Directory, location.Leaf)
}

// WriteFile creates a new file at `path` holding `data`.
func (session *Session) WriteFile(path string, data []byte) error {
	if !session.mountFlags.CanWrite() {
		return fatshell.ErrReadOnlyFileSystem.WithMessage(
			fmt.Sprintf(
				"can't write %q: image is mounted read-only",
				session.NormalizePath(path)))
	}

	location, err := session.fileLocation(path)
	if err != nil {
		return err
	}

	err = session.volume.CreateFile(location.Directory, location.Leaf, data)
	if err != nil {
		return err
	}

	session.logger.WithFields(logrus.Fields{
		"path":      session.NormalizePath(path),
		"directory": location.Directory,
		"size":      len(data),
	}).Debug("created file")
	return nil
}

// Info returns the volume summary followed by the session's position in it.
func (session *Session) Info() string {
	return fmt.Sprintf(
		"%s\n - Current Cluster: %d\n - Working Directory: %s",
		session.volume.Info(),
		session.workingDir,
		session.workingDirPath)
}

// Flush writes all modified sectors back to the image file. It does nothing
// for read-only sessions.
func (session *Session) Flush() error {
	if err := session.checkOpen(); err != nil {
		return err
	}
	if !session.mountFlags.CanWrite() {
		return nil
	}

	dirtySectors := session.cache.DirtyBlocks()
	err := session.cache.Flush()
	if err != nil {
		return err
	}

	session.logger.WithField("sectors", dirtySectors).Debug("flushed image")
	return nil
}

// Close flushes all changes and closes the image file. Closing a session more
// than once does nothing.
func (session *Session) Close() error {
	if session.closed {
		return nil
	}

	var result *multierror.Error
	if err := session.Flush(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := session.file.Close(); err != nil {
		result = multierror.Append(result, fatshell.ErrIOFailed.Wrap(err))
	}

	session.closed = true
	session.logger.Debug("closed image")
	return result.ErrorOrNil()
}
