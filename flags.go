package fatshell

// MountFlags controls how an image is opened for a session.
type MountFlags int

const (
	MountFlagsAllowRead = 1 << iota
	MountFlagsAllowWrite

	MountFlagsReadOnly  = MountFlags(MountFlagsAllowRead)
	MountFlagsReadWrite = MountFlags(MountFlagsAllowRead | MountFlagsAllowWrite)
)

// CanRead returns true if the flags permit reading from the image.
func (flags MountFlags) CanRead() bool {
	return flags&MountFlagsAllowRead != 0
}

// CanWrite returns true if the flags permit modifying the image.
func (flags MountFlags) CanWrite() bool {
	return flags&MountFlagsAllowWrite != 0
}
