package file

import (
	"path"
	"strings"
	"time"
)

// EntryKind tells files and folders apart in a listing.
type EntryKind string

const (
	KindFile   EntryKind = "file"
	KindFolder EntryKind = "folder"
)

// FileType is the display category derived from a file's extension.
type FileType string

const (
	TypeImage    FileType = "IMAGE"
	TypeVideo    FileType = "VIDEO"
	TypeAudio    FileType = "AUDIO"
	TypeDocument FileType = "DOCUMENT"
	TypeArchive  FileType = "ARCHIVE"
	TypeCode     FileType = "CODE"
	TypeOther    FileType = "OTHER"
)

// Entry is one row of a listing. Folders carry the summed size and the
// newest modification time of everything below them.
type Entry struct {
	Kind         EntryKind `json:"kind"`
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	Type         FileType  `json:"type,omitempty"`
	ContentType  string    `json:"contentType,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// UploadResult describes a stored upload.
type UploadResult struct {
	Entry
	Checksum string `json:"checksum"`
}

var extensionTypes = map[string]FileType{}

func init() {
	register := func(t FileType, exts ...string) {
		for _, ext := range exts {
			extensionTypes[ext] = t
		}
	}
	register(TypeImage, "jpg", "jpeg", "png", "gif", "webp", "bmp", "svg", "heic", "tif", "tiff", "ico")
	register(TypeVideo, "mp4", "mov", "mkv", "avi", "webm", "m4v", "wmv")
	register(TypeAudio, "mp3", "wav", "flac", "ogg", "m4a", "aac", "opus")
	register(TypeDocument, "pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "odt", "ods", "txt", "md", "rtf", "csv")
	register(TypeArchive, "zip", "tar", "gz", "tgz", "bz2", "xz", "7z", "rar", "zst")
	register(TypeCode, "go", "js", "jsx", "ts", "tsx", "py", "rb", "rs", "java", "c", "h", "cpp", "cs",
		"sh", "json", "yaml", "yml", "toml", "html", "css", "sql")
}

// Classify returns the display category of name.
func Classify(name string) FileType {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return TypeOther
}

// compressed reports whether deflating t is a waste of CPU.
func (t FileType) compressed() bool {
	switch t {
	case TypeImage, TypeVideo, TypeAudio, TypeArchive:
		return true
	default:
		return false
	}
}
