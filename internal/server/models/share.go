package models

import "time"

// Share is the envelope of an external sharing link: an opaque access token
// plus the quota/expiry rules that gate it. NUsed never exceeds NTotal; the
// increment happens through a conditional UPDATE in the repository.
type Share struct {
	ID        string
	UserID    string
	Token     string
	NTotal    int64
	NUsed     int64
	ExpiresAt *time.Time
	CreatedAt time.Time

	Items []*SharedItem
}

// SharedItem is a re-encrypted snapshot of one origin data item. OriginItemID
// turns nil when the origin is deleted; a share whose items are all orphaned
// is invalid and gets purged.
type SharedItem struct {
	ID           string
	ShareID      string
	OriginItemID *string
	Payload      []byte
	Meta         *string
	CreatedAt    time.Time
}

// SurvivingItems returns the shared items whose origin still exists.
func (s *Share) SurvivingItems() []*SharedItem {
	var out []*SharedItem
	for _, it := range s.Items {
		if it.OriginItemID != nil {
			out = append(out, it)
		}
	}
	return out
}
