package objectstore

import (
	"errors"
	"path"
	"strings"
)

// TrashDir is the per-user folder holding soft-deleted objects.
const TrashDir = ".trash"

const trashMarker = "/" + TrashDir + "/"

// ErrInvalidPath is returned for relative paths that escape the user namespace.
var ErrInvalidPath = errors.New("invalid path")

// UserPrefix returns the key prefix owning every object of userID.
func UserPrefix(userID string) string {
	return userID + "/"
}

// TrashPrefix returns the key prefix of userID's trash.
func TrashPrefix(userID string) string {
	return userID + trashMarker
}

// Key joins userID and a cleaned relative path.
func Key(userID, rel string) string {
	return UserPrefix(userID) + rel
}

// TrashKey returns where rel lives once soft-deleted.
func TrashKey(userID, rel string) string {
	return TrashPrefix(userID) + rel
}

// IsTrashKey reports whether key is inside a trash folder. Detection is
// purely lexical.
func IsTrashKey(key string) bool {
	return strings.Contains(key, trashMarker)
}

// IsFolder reports whether rel names a folder prefix.
func IsFolder(rel string) bool {
	return strings.HasSuffix(rel, "/")
}

// Relative strips the user prefix from key.
func Relative(userID, key string) string {
	return strings.TrimPrefix(key, UserPrefix(userID))
}

// TrashRelative strips the trash prefix from key.
func TrashRelative(userID, key string) string {
	return strings.TrimPrefix(key, TrashPrefix(userID))
}

// CleanRelative normalizes a client-supplied relative path. A trailing slash
// is preserved so folders stay folders. Absolute paths, parent references and
// empty paths are rejected.
func CleanRelative(rel string) (string, error) {
	rel = strings.TrimSpace(strings.ReplaceAll(rel, "\\", "/"))
	if rel == "" || strings.HasPrefix(rel, "/") {
		return "", ErrInvalidPath
	}
	folder := IsFolder(rel)
	for _, segment := range strings.Split(strings.TrimSuffix(rel, "/"), "/") {
		if segment == ".." || segment == "." || segment == "" {
			return "", ErrInvalidPath
		}
	}
	cleaned := path.Clean(rel)
	if folder {
		cleaned += "/"
	}
	return cleaned, nil
}

// BaseName returns the last path element of rel, without a trailing slash.
func BaseName(rel string) string {
	return path.Base(strings.TrimSuffix(rel, "/"))
}
