// Package common contains definitions of fundamental types used across the file
// system implementations.
package common

// LogicalBlock is the index of a block within a cache or image, counting from
// 0.
type LogicalBlock uint
