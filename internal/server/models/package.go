// Package models defines server-side data models persisted in the database.
package models

import "strings"

// PackageStatus is the lifecycle state shared by packages and symbol packages.
// Records are never physically removed; deletion is a status flip.
type PackageStatus string

const (
	PackageStatusAvailable        PackageStatus = "available"
	PackageStatusValidating       PackageStatus = "validating"
	PackageStatusDeleted          PackageStatus = "deleted"
	PackageStatusFailedValidation PackageStatus = "failed_validation"
)

// Valid reports whether s is one of the known statuses.
func (s PackageStatus) Valid() bool {
	switch s {
	case PackageStatusAvailable, PackageStatusValidating, PackageStatusDeleted, PackageStatusFailedValidation:
		return true
	}
	return false
}

// Package is a published package version. The symbol pipeline only reads
// packages; it mutates the symbol packages hanging off them.
type Package struct {
	// Key is the database primary key.
	Key int64
	// ID is the package id as originally cased.
	ID string
	// Version is the version string as uploaded.
	Version string
	// NormalizedVersion is the canonical version used for lookups and blob names.
	NormalizedVersion string
	Status            PackageStatus

	// SymbolPackages holds every symbol package ever uploaded for this
	// package version, including deleted ones.
	SymbolPackages []*SymbolPackage
}

// IsDeleted reports whether the package has been soft-deleted.
func (p *Package) IsDeleted() bool {
	return p.Status == PackageStatusDeleted
}

// LowerID returns the case-insensitive identity used for blob names.
func (p *Package) LowerID() string {
	return strings.ToLower(p.ID)
}

// SymbolPackagesWithStatus returns the symbol packages currently in status s.
func (p *Package) SymbolPackagesWithStatus(s PackageStatus) []*SymbolPackage {
	var out []*SymbolPackage
	for _, sp := range p.SymbolPackages {
		if sp.Status == s {
			out = append(out, sp)
		}
	}
	return out
}

// HasValidatingSymbolPackage reports whether a symbol upload for this package
// is still waiting on validation.
func (p *Package) HasValidatingSymbolPackage() bool {
	return len(p.SymbolPackagesWithStatus(PackageStatusValidating)) > 0
}
