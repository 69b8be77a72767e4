package models

import "time"

// ItemKind discriminates the two data item variants.
type ItemKind string

const (
	ItemKindCredential ItemKind = "credential"
	ItemKindFile       ItemKind = "file"
)

// DataItem is one stored secret. Exactly one of Credential or File is set,
// matching Kind. Separators carries the item's folder/tag links when the
// repository was asked to load them.
type DataItem struct {
	ID          string
	UserID      string
	AppName     string
	Description string
	Kind        ItemKind
	CreatedAt   time.Time

	Credential *Credential
	File       *File
	Separators []*Separator
}

// Credential is the 1:1 detail record of a credential item. Email is empty
// when the credential has none; the duplicate key treats "no email" as its
// own bucket.
type Credential struct {
	ItemID    string
	SecretEnc string
	HostURL   string
	Email     string
}

// File is the 1:1 detail record of a file item. Payload holds the encrypted
// bytes inline; large payloads are offloaded to object storage instead, in
// which case Payload is nil and StorageKey is set.
type File struct {
	ItemID     string
	Payload    []byte
	StorageKey string
	FileName   string
	Extension  string
}

// FolderID returns the id of the item's enclosing folder, or nil. Items hold
// at most one folder link; extra folder rows would be a bug upstream, so the
// first one wins.
func (d *DataItem) FolderID() *string {
	for _, s := range d.Separators {
		if s.Kind == SeparatorKindFolder {
			id := s.ID
			return &id
		}
	}
	return nil
}

// TagIDs returns the ids of the item's tag links.
func (d *DataItem) TagIDs() []string {
	var ids []string
	for _, s := range d.Separators {
		if s.Kind == SeparatorKindTag {
			ids = append(ids, s.ID)
		}
	}
	return ids
}
