// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: Represents an open file with read/write/sync capabilities
//   - [FileSystem]: Abstracts filesystem operations (open, remove, rename, etc.)
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// Production code should use fs.Default (which is [LocalFS]). Tests can
// inject [FaultyFS] to simulate disk-cache write failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".png", fs.Fault{FailAfterBytes: 0})
//	// inject ffs into the disk cache under test
package fs
