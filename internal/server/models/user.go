package models

// User is the authenticated uploader.
type User struct {
	ID       string
	Username string
}
