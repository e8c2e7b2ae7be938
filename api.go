package fatshell

import (
	"os"
)

// ReadingDriver is the interface for sessions supporting read operations. All
// paths are slash-separated; relative paths are resolved against the working
// directory.
type ReadingDriver interface {
	// ReadDir returns the live entries of the directory at `path`. Deleted
	// entries, long-name fragments and the volume label are never included.
	ReadDir(path string) ([]os.FileInfo, error)
	// ReadFile returns the contents of the file at the given path.
	ReadFile(path string) ([]byte, error)
	// ChangeDir sets the working directory. On failure the working directory
	// is left unchanged.
	ChangeDir(path string) error
	// WorkingDirectory returns the absolute path of the working directory.
	WorkingDirectory() string
	// Info returns a human-readable summary of the volume geometry.
	Info() string
}

// WritingDriver is the interface for sessions supporting write operations.
type WritingDriver interface {
	// WriteFile creates a new file at `path` holding `data`. Existing files
	// are not replaced; writing the same name twice creates two entries.
	WriteFile(path string, data []byte) error
}

// Driver is the interface for sessions implementing all capabilities.
type Driver interface {
	ReadingDriver
	WritingDriver

	// Flush writes all changes to the disk image. Read-only sessions must
	// ignore this and should not return an error.
	Flush() error

	// Close flushes all changes to the disk image and frees all resources. The
	// session must not be used after this function is called.
	Close() error
}
