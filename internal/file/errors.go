package file

import "errors"

var (
	// ErrFileNotFound signals that the file or folder could not be located.
	ErrFileNotFound = errors.New("file not found")
	// ErrFileTooLarge signals that the upload exceeds the single-object limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrNotFolder signals a folder operation on a file path.
	ErrNotFolder = errors.New("path is not a folder")
	// ErrTrashTarget signals an upload into the trash.
	ErrTrashTarget = errors.New("cannot upload into trash")
)
