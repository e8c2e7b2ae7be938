package fat32

import (
	"fmt"
	"strings"

	"github.com/dargueta/fatshell"
)

// Location is the result of resolving a path: the directory containing the
// final path component, and that component's name. Leaf is empty if the path
// named the directory itself, e.g. "/" or "".
type Location struct {
	Directory ClusterID
	Leaf      string
}

// HasLeaf returns true if the resolved path ended with a name to act on.
func (loc Location) HasLeaf() bool {
	return loc.Leaf != ""
}

// Resolve walks `path` starting at the directory `start`, or at the root if the
// path begins with "/". Every component except the last must name a
// directory. Empty components are ignored, so "a//b/" is the same as "a/b".
//
// Resolution stops at the first component that doesn't exist
// ([fatshell.ErrNotFound]) or isn't a directory ([fatshell.ErrNotADirectory]).
func (v *Volume) Resolve(start ClusterID, path string) (Location, error) {
	current := start
	if strings.HasPrefix(path, "/") || current < FirstDataCluster {
		current = v.geometry.RootCluster
	}

	segments := SplitPath(path)
	if len(segments) == 0 {
		return Location{Directory: current}, nil
	}

	for _, segment := range segments[:len(segments)-1] {
		next, err := v.LookupDirectory(current, segment)
		if err != nil {
			return Location{}, err
		}
		current = next
	}

	return Location{Directory: current, Leaf: segments[len(segments)-1]}, nil
}

// SplitPath breaks a slash-separated path into its non-empty components.
func SplitPath(path string) []string {
	segments := []string{}
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

// Lookup finds the live entry named `name` in the directory at `directory`.
// Names are compared case-insensitively.
func (v *Volume) Lookup(directory ClusterID, name string) (Dirent, error) {
	scanner := v.Scan(directory)
	for scanner.Next() {
		dirent := scanner.Dirent()
		if strings.EqualFold(dirent.Name(), name) {
			return dirent, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return Dirent{}, err
	}

	return Dirent{}, fatshell.ErrNotFound.WithMessage(
		fmt.Sprintf("%q not found in directory at cluster %d", name, directory))
}

// LookupDirectory returns the first cluster of the subdirectory `name` of
// `directory`. "." is the directory itself, and ".." in the root is the root.
func (v *Volume) LookupDirectory(directory ClusterID, name string) (ClusterID, error) {
	if name == "." {
		return directory, nil
	}
	if name == ".." && directory == v.geometry.RootCluster {
		return directory, nil
	}

	dirent, err := v.Lookup(directory, name)
	if err != nil {
		return 0, err
	}
	if !dirent.IsDir() {
		return 0, fatshell.ErrNotADirectory.WithMessage(
			fmt.Sprintf("%q is not a directory", name))
	}
	return v.directoryCluster(dirent.FirstCluster), nil
}

// ChangeDir resolves `path` relative to `start` and returns the first cluster
// of the directory it names.
func (v *Volume) ChangeDir(start ClusterID, path string) (ClusterID, error) {
	location, err := v.Resolve(start, path)
	if err != nil {
		return 0, err
	}
	if !location.HasLeaf() {
		return location.Directory, nil
	}
	return v.LookupDirectory(location.Directory, location.Leaf)
}
