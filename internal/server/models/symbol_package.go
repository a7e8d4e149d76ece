package models

import "time"

// SymbolPackage is one uploaded debug-symbols archive tied to exactly one
// Package. At most one per package may be Validating and at most one should be
// Available; superseded ones are demoted to Deleted.
type SymbolPackage struct {
	// Key is the database primary key; zero until the row is inserted.
	Key int64
	// PackageKey links the row to its parent package.
	PackageKey int64
	// Package is the in-memory parent.
	Package *Package

	Status    PackageStatus
	Created   time.Time
	Published *time.Time

	// HashAlgorithm names the algorithm used for Hash (always SHA512).
	HashAlgorithm string
	// Hash is the base64 encoded content hash of the archive.
	Hash string
	// Size is the archive length in bytes.
	Size int64

	// ValidationID identifies the queued validation request, if any. It is
	// set by the validation trigger and not stored.
	ValidationID string

	// original holds the status as loaded from the database, so a commit only
	// writes rows whose status actually changed.
	original PackageStatus
	loaded   bool
}

// MarkLoaded records the current status as the persisted one. Repositories
// call it after scanning a row.
func (sp *SymbolPackage) MarkLoaded() {
	sp.original = sp.Status
	sp.loaded = true
}

// IsNew reports whether the record has not been persisted yet.
func (sp *SymbolPackage) IsNew() bool {
	return !sp.loaded
}

// StatusChanged reports whether a persisted record's status differs from the
// stored one.
func (sp *SymbolPackage) StatusChanged() bool {
	return sp.loaded && sp.original != sp.Status
}

// PackageStreamMetadata describes an uploaded stream. It is computed once and
// copied into the new SymbolPackage; it is never stored on its own.
type PackageStreamMetadata struct {
	HashAlgorithm string
	Hash          string
	Size          int64
}
