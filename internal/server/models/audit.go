package models

import "time"

// Audit actions recorded by the core. The sink persists them post-commit;
// they are pure derived data and never constrain business operations.
const (
	ActionUserRegistered   = "user_registered"
	ActionUserLogin        = "user_login"
	ActionUserUpdated      = "user_updated"
	ActionUserWiped        = "user_data_wiped"
	ActionUserDeleted      = "user_deleted"
	ActionCredentialCreate = "credential_created"
	ActionFileCreate       = "file_created"
	ActionItemUpdated      = "item_updated"
	ActionItemDeleted      = "item_deleted"
	ActionItemViewed       = "item_viewed"
	ActionFolderCreated    = "folder_created"
	ActionTagCreated       = "tag_created"
	ActionSeparatorUpdated = "separator_updated"
	ActionSeparatorDeleted = "separator_deleted"
	ActionShareCreated     = "share_created"
	ActionShareRedeemed    = "share_redeemed"
	ActionShareUpdated     = "share_updated"
	ActionShareRevoked     = "share_revoked"
)

// AuditLog is an append-only record of one action. UserID and ItemID are
// optional references; rows are deleted ahead of their referents during
// cascades because the foreign keys carry no ON DELETE action.
type AuditLog struct {
	ID      string
	UserID  *string
	ItemID  *string
	Action  string
	AppName *string
	Device  *string
	IP      *string
	Region  *string
	At      time.Time
}

// Event is a user-facing notification derived from an audit fact.
type Event struct {
	ID        string
	UserID    string
	Message   string
	CreatedAt time.Time
}
