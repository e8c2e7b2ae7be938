package fat32

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dargueta/fatshell"
	"github.com/noxer/bytewriter"
)

const (
	// AttrReadOnly is an attribute flag marking a directory entry as read-only.
	AttrReadOnly = 1 << iota

	// AttrHidden is an attribute flag marking a directory entry as "hidden". It's
	// preserved but otherwise ignored; hidden entries are listed like any other.
	AttrHidden = 1 << iota

	// AttrSystem is an attribute flag marking a directory entry as essential to
	// the operating system.
	AttrSystem = 1 << iota

	// AttrVolumeLabel is an attribute flag marking the entry holding the volume
	// label. Such entries are never listed.
	AttrVolumeLabel = 1 << iota

	// AttrDirectory is an attribute flag marking a directory entry as being a
	// directory.
	AttrDirectory = 1 << iota

	// AttrArchived is an attribute flag set whenever an entry is created or
	// modified. Entries written by this package always have it.
	AttrArchived = 1 << iota
)

// AttrLongName is the exact attribute value of a long file name fragment.
const AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeLabel

// DirentSize is the size of a single raw directory entry, in bytes.
const DirentSize = 32

const (
	// DirentEndOfDirectory as the first name byte marks the end of a directory.
	DirentEndOfDirectory = 0x00
	// DirentDeleted as the first name byte marks a free, previously used slot.
	DirentDeleted = 0xE5
	// DirentEscapedE5 as the first name byte stands for a literal 0xE5.
	DirentEscapedE5 = 0x05
)

// RawDirent is the on-disk representation of a directory entry, broken down into its
// constituent fields.
type RawDirent struct {
	Name              [8]byte
	Extension         [3]byte
	AttributeFlags    uint8
	NTReserved        uint8
	CreatedTimeTenths uint8
	CreatedTime       uint16
	CreatedDate       uint16
	LastAccessedDate  uint16
	FirstClusterHigh  uint16
	LastModifiedTime  uint16
	LastModifiedDate  uint16
	FirstClusterLow   uint16
	FileSize          uint32
}

// NewRawDirentFromBytes deserializes 32 bytes into a RawDirent struct for further
// processing. `data` must be at least DirentSize bytes long.
func NewRawDirentFromBytes(data []byte) RawDirent {
	dirent := RawDirent{
		AttributeFlags:    data[11],
		NTReserved:        data[12],
		CreatedTimeTenths: data[13],
		CreatedTime:       binary.LittleEndian.Uint16(data[14:16]),
		CreatedDate:       binary.LittleEndian.Uint16(data[16:18]),
		LastAccessedDate:  binary.LittleEndian.Uint16(data[18:20]),
		FirstClusterHigh:  binary.LittleEndian.Uint16(data[20:22]),
		LastModifiedTime:  binary.LittleEndian.Uint16(data[22:24]),
		LastModifiedDate:  binary.LittleEndian.Uint16(data[24:26]),
		FirstClusterLow:   binary.LittleEndian.Uint16(data[26:28]),
		FileSize:          binary.LittleEndian.Uint32(data[28:32]),
	}

	copy(dirent.Name[:], data[:8])
	copy(dirent.Extension[:], data[8:11])
	return dirent
}

// Bytes serializes the directory entry into its 32-byte on-disk form.
func (raw *RawDirent) Bytes() []byte {
	data := make([]byte, DirentSize)
	writer := bytewriter.New(data)

	// RawDirent is exactly DirentSize bytes with no padding, so this only fails
	// if the struct layout is broken.
	if err := binary.Write(writer, binary.LittleEndian, raw); err != nil {
		panic(fmt.Sprintf("can't encode a %d-byte directory entry: %s", DirentSize, err))
	}
	return data
}

// FirstCluster combines the high and low halves of the starting cluster.
func (raw *RawDirent) FirstCluster() ClusterID {
	return ClusterID(uint32(raw.FirstClusterHigh)<<16 | uint32(raw.FirstClusterLow))
}

// Dirent is a live directory entry as produced by a directory scan. It
// implements os.FileInfo.
type Dirent struct {
	name           string
	AttributeFlags uint8
	// FirstCluster is the starting cluster exactly as stored on disk. For
	// directories, 0 refers to the root directory.
	FirstCluster ClusterID
	LastModified time.Time
	size         uint32
	slot         int
}

// NewDirentFromRaw creates a fully processed Dirent from a raw one found at
// index `slot` of its directory.
func NewDirentFromRaw(raw *RawDirent, slot int) Dirent {
	return Dirent{
		name:           BytesToFilename(raw.Name[:], raw.Extension[:]),
		AttributeFlags: raw.AttributeFlags,
		FirstCluster:   raw.FirstCluster(),
		LastModified:   TimestampFromParts(raw.LastModifiedDate, raw.LastModifiedTime),
		size:           raw.FileSize,
		slot:           slot,
	}
}

// Name returns the lowercase 8.3 name of the entry, e.g. "readme.txt".
func (d Dirent) Name() string { return d.name }

// Size is the size of the file in bytes. Directories always report 0.
func (d Dirent) Size() int64 { return int64(d.size) }

func (d Dirent) Mode() os.FileMode { return AttrFlagsToFileMode(d.AttributeFlags) }

func (d Dirent) ModTime() time.Time { return d.LastModified }

func (d Dirent) IsDir() bool { return d.AttributeFlags&AttrDirectory != 0 }

func (d Dirent) Sys() interface{} { return nil }

// Slot is the index of the entry within its directory, counting from 0.
func (d Dirent) Slot() int { return d.slot }

// AttrFlagsToFileMode converts FAT attribute flags into Go's os.FileMode.
func AttrFlagsToFileMode(flags uint8) os.FileMode {
	// FAT has no way to mark files as executable, so the executable bit is always clear
	// for files.
	if flags&AttrDirectory != 0 {
		return os.ModeDir | 0o755
	}
	if flags&AttrReadOnly != 0 {
		return 0o444
	}
	return 0o666
}

// TimestampFromParts converts a FAT date and time into a time.Time in the local
// time zone. A zero date means the field was never set and gives the zero
// time.
func TimestampFromParts(datePart uint16, timePart uint16) time.Time {
	if datePart == 0 {
		return time.Time{}
	}

	day := int(datePart & 0x001f)
	month := time.Month((datePart >> 5) & 0x000f)
	year := int(1980 + (datePart >> 9))

	seconds := int(timePart&0x001f) * 2
	minutes := int((timePart >> 5) & 0x003f)
	hours := int(timePart >> 11)

	return time.Date(year, month, day, hours, minutes, seconds, 0, time.Local)
}

// BytesToFilename converts the on-disk stem and extension of a directory entry
// into its user-friendly, lowercase form.
func BytesToFilename(rawStem, rawExtension []byte) string {
	// Lowercasing has to happen before the escape is undone, since 0xE5 on its
	// own isn't valid UTF-8 and strings.ToLower would replace it.
	stem := strings.ToLower(strings.TrimSpace(string(rawStem)))
	extension := strings.ToLower(strings.TrimSpace(string(rawExtension)))

	if len(stem) > 0 && stem[0] == DirentEscapedE5 {
		stem = string([]byte{DirentDeleted}) + stem[1:]
	}

	if extension == "" {
		return stem
	}
	return stem + "." + extension
}

// invalidNameCharacters can't appear anywhere in an 8.3 name.
const invalidNameCharacters = "\"*+,/:;<=>?[\\]|"

// FilenameToBytes converts a filename string to its on-disk representation: an
// eight-character stem followed by a three-character extension, both padded
// with spaces. The returned name is normalized to uppercase.
func FilenameToBytes(name string) ([]byte, error) {
	if name == "" || name == "." || name == ".." {
		return nil, fatshell.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q can't be used as a file name", name))
	}

	for _, char := range name {
		if char < 0x20 || char > 0x7e || strings.ContainsRune(invalidNameCharacters, char) {
			return nil, fatshell.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("file name %q contains invalid character %q", name, char))
		}
	}

	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return nil, fatshell.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("file name %q has more than one period", name))
	}

	stem := parts[0]
	extension := ""
	if len(parts) == 2 {
		extension = parts[1]
	}

	if stem == "" {
		return nil, fatshell.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("file name %q has an empty stem", name))
	}
	if len(stem) > 8 {
		return nil, fatshell.ErrNameTooLong.WithMessage(
			fmt.Sprintf("filename stem can be at most eight characters: %q", stem))
	}
	if len(extension) > 3 {
		return nil, fatshell.ErrNameTooLong.WithMessage(
			fmt.Sprintf("filename extension can be at most three characters: %q", extension))
	}

	paddedName := fmt.Sprintf("%-8s%-3s", stem, extension)
	return []byte(strings.ToUpper(paddedName)), nil
}
