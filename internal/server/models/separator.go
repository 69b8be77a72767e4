package models

import "time"

// SeparatorKind discriminates the two organizing-node kinds.
type SeparatorKind string

const (
	SeparatorKindFolder SeparatorKind = "folder"
	SeparatorKindTag    SeparatorKind = "tag"
)

// Separator is a folder or a tag. Folders form a forest per user via
// ParentID (nil = root level); tags are flat and never have a parent.
// Color is only meaningful for tags.
type Separator struct {
	ID        string
	UserID    string
	ParentID  *string
	Name      string
	Kind      SeparatorKind
	Color     *string
	CreatedAt time.Time
}

// IsFolder reports whether the separator is a folder.
func (s *Separator) IsFolder() bool { return s.Kind == SeparatorKindFolder }
