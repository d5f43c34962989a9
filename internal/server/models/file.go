// Package models defines server-side data models persisted in the database.
package models

import "time"

// AccessType enumerates how a stored file may be retrieved.
type AccessType int

const (
	// AccessNormal files are served to anyone holding the token.
	AccessNormal AccessType = 0
	// AccessPasswordProtected files are gated behind a password set on
	// first access.
	AccessPasswordProtected AccessType = 1
)

// Access is the retrieval policy of a file record. It is a closed set of
// variants: NormalAccess carries nothing, ProtectedAccess carries the
// optional secret. The split makes the state "normal file with a secret"
// unrepresentable.
type Access interface {
	Type() AccessType
}

// NormalAccess marks a file as freely retrievable by token.
type NormalAccess struct{}

func (NormalAccess) Type() AccessType { return AccessNormal }

// ProtectedAccess gates retrieval behind a password. Secret is valid only
// when Set is true; the set step happens once and is never reverted.
type ProtectedAccess struct {
	Secret string
	Set    bool
}

func (ProtectedAccess) Type() AccessType { return AccessPasswordProtected }

// DecodeAccess rebuilds the Access variant from its persisted form:
// the access_type column plus the nullable access_secret column.
func DecodeAccess(t AccessType, secret *string) Access {
	if t == AccessPasswordProtected {
		if secret == nil {
			return ProtectedAccess{}
		}
		return ProtectedAccess{Secret: *secret, Set: true}
	}
	return NormalAccess{}
}

// EncodeAccess flattens an Access variant into its persisted form.
func EncodeAccess(a Access) (AccessType, *string) {
	if p, ok := a.(ProtectedAccess); ok {
		if p.Set {
			s := p.Secret
			return AccessPasswordProtected, &s
		}
		return AccessPasswordProtected, nil
	}
	return AccessNormal, nil
}

// FileRecord describes one uploaded file. The raw bytes live in blob storage
// under StorageKey; a record exists exactly when its blob exists.
type FileRecord struct {
	// Token is the public access identifier, unique across all records.
	Token string
	// Extension is the original filename's suffix after the first dot,
	// possibly empty. Immutable; the extension in a request path is ignored.
	Extension string
	// OriginalFilename is informational only.
	OriginalFilename string
	// MimeType is served back with the blob.
	MimeType string
	// DeletionToken authorizes removal of the record and blob.
	DeletionToken string
	// Access is the retrieval policy variant.
	Access Access
	// CreatedAt is set by the database.
	CreatedAt time.Time
}

// StorageKey returns the blob-storage key for the record:
// "<token>.<extension>", or just "<token>" when the extension is empty.
// The same string is the public file name returned from an upload.
func (r *FileRecord) StorageKey() string {
	if r.Extension == "" {
		return r.Token
	}
	return r.Token + "." + r.Extension
}
