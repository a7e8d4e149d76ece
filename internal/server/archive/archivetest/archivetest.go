// Package archivetest builds in-memory package archives for tests.
package archivetest

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
)

// File is one archive entry.
type File struct {
	Name     string
	Body     []byte
	Modified time.Time
}

// DefaultModified is the timestamp given to entries that do not set one.
var DefaultModified = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// PortablePDB is the smallest body accepted as a portable PDB.
var PortablePDB = []byte("BSJB\x01\x00\x01\x00portable-pdb")

// Nuspec renders a manifest with the given identity and package types.
func Nuspec(id, version string, packageTypes ...string) []byte {
	var types bytes.Buffer
	if len(packageTypes) > 0 {
		types.WriteString("<packageTypes>")
		for _, t := range packageTypes {
			fmt.Fprintf(&types, `<packageType name="%s" />`, t)
		}
		types.WriteString("</packageTypes>")
	}
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd">
  <metadata>
    <id>%s</id>
    <version>%s</version>
    <description>symbols</description>
    %s
  </metadata>
</package>`, id, version, types.String()))
}

// Build writes files into a zip archive.
func Build(t testing.TB, files ...File) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		mod := f.Modified
		if mod.IsZero() {
			mod = DefaultModified
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: mod})
		if err != nil {
			t.Fatalf("create %s: %v", f.Name, err)
		}
		if _, err := w.Write(f.Body); err != nil {
			t.Fatalf("write %s: %v", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// SymbolsPackage builds a well-formed symbols package for id and version.
func SymbolsPackage(t testing.TB, id, version string) []byte {
	t.Helper()
	return Build(t,
		File{Name: id + ".nuspec", Body: Nuspec(id, version, "SymbolsPackage")},
		File{Name: "lib/net8.0/" + id + ".pdb", Body: PortablePDB},
		File{Name: "[Content_Types].xml", Body: []byte("<Types/>")},
		File{Name: "_rels/.rels", Body: []byte("<Relationships/>")},
	)
}
