// Package archive reads uploaded package archives: it scans entries for
// tampering, exposes their contents and extracts the package identity from
// the embedded .nuspec manifest.
package archive

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

var (
	// ErrInvalidArchive means the stream is not a readable zip archive.
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrInvalidMetadata means the embedded manifest is missing or malformed.
	ErrInvalidMetadata = errors.New("invalid package metadata")
)

// maxNuspecSize bounds how much of the manifest is read into memory.
const maxNuspecSize = 1 << 20

// Entry is a single file inside the archive.
type Entry struct {
	Name     string
	Modified time.Time
	Size     uint64

	f *zip.File
}

// Open returns a reader over the entry's uncompressed content.
func (e Entry) Open() (io.ReadCloser, error) {
	return e.f.Open()
}

// Reader is a read-only view over a package archive. It never closes or
// repositions the underlying io.ReaderAt, so the caller keeps ownership of
// the upload stream.
type Reader struct {
	zr       *zip.Reader
	manifest *nuspec
}

// Open parses the zip central directory of r.
func Open(r io.ReaderAt, size int64) (*Reader, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	return &Reader{zr: zr}, nil
}

// Entries lists every file in the archive in directory order.
func (r *Reader) Entries() []Entry {
	out := make([]Entry, 0, len(r.zr.File))
	for _, f := range r.zr.File {
		out = append(out, Entry{Name: f.Name, Modified: f.Modified, Size: f.UncompressedSize64, f: f})
	}
	return out
}

// FindFutureDatedEntry returns the name of the first entry whose modification
// time lies after now. Such entries are a known crafting trick that breaks
// downstream extraction tools.
func (r *Reader) FindFutureDatedEntry(now time.Time) (string, bool) {
	for _, f := range r.zr.File {
		if f.Modified.After(now) {
			return f.Name, true
		}
	}
	return "", false
}

type nuspec struct {
	XMLName  xml.Name `xml:"package"`
	Metadata struct {
		ID           string `xml:"id"`
		Version      string `xml:"version"`
		PackageTypes struct {
			Types []struct {
				Name string `xml:"name,attr"`
			} `xml:"packageType"`
		} `xml:"packageTypes"`
	} `xml:"metadata"`
}

func (r *Reader) readManifest() (*nuspec, error) {
	if r.manifest != nil {
		return r.manifest, nil
	}

	var found *zip.File
	for _, f := range r.zr.File {
		if strings.Contains(f.Name, "/") || !strings.EqualFold(path.Ext(f.Name), ".nuspec") {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: multiple .nuspec files at the archive root", ErrInvalidMetadata)
		}
		found = f
	}
	if found == nil {
		return nil, fmt.Errorf("%w: no .nuspec file at the archive root", ErrInvalidMetadata)
	}

	rc, err := found.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	defer rc.Close()

	var m nuspec
	if err := xml.NewDecoder(io.LimitReader(rc, maxNuspecSize)).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	r.manifest = &m
	return r.manifest, nil
}

// ReadIdentity returns the package id and version declared by the manifest.
// The version is returned as written; use NormalizeVersion for lookups.
func (r *Reader) ReadIdentity() (id, version string, err error) {
	m, err := r.readManifest()
	if err != nil {
		return "", "", err
	}
	id = strings.TrimSpace(m.Metadata.ID)
	version = strings.TrimSpace(m.Metadata.Version)
	if id == "" {
		return "", "", fmt.Errorf("%w: id is missing", ErrInvalidMetadata)
	}
	if version == "" {
		return "", "", fmt.Errorf("%w: version is missing", ErrInvalidMetadata)
	}
	if _, err := NormalizeVersion(version); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return id, version, nil
}

// PackageTypes returns the package type names declared by the manifest.
func (r *Reader) PackageTypes() ([]string, error) {
	m, err := r.readManifest()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m.Metadata.PackageTypes.Types))
	for _, t := range m.Metadata.PackageTypes.Types {
		out = append(out, strings.TrimSpace(t.Name))
	}
	return out, nil
}
