// Package models holds the plain data records the server core operates on.
// Repositories map these to and from SQL rows; services never see wire or
// storage formats.
package models

import "time"

// User is the identity root. Every other entity is owned by a user,
// directly or transitively.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	KDFSalt      string
	CreatedAt    time.Time
}
