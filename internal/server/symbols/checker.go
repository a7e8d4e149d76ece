package symbols

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/RightsTracker/NuGetGallery/internal/server/archive"
)

// SymbolsPackageType is the package type a symbols package must declare.
const SymbolsPackageType = "SymbolsPackage"

// portablePDBSignature starts every portable PDB (ECMA-335 metadata root).
var portablePDBSignature = []byte("BSJB")

var allowedExtensions = map[string]struct{}{
	".pdb":    {},
	".nuspec": {},
	".xml":    {},
	".psmdcp": {},
	".rels":   {},
	".p7s":    {},
}

// Checker validates the structure of a symbols package.
type Checker struct{}

func NewChecker() *Checker {
	return &Checker{}
}

// EnsureValid returns nil for a valid symbols package, a *ValidationError for
// a rejected one and any other error for unexpected failures.
func (c *Checker) EnsureValid(ctx context.Context, r *archive.Reader) error {
	types, err := r.PackageTypes()
	if err != nil {
		return err
	}
	if len(types) != 1 || !strings.EqualFold(types[0], SymbolsPackageType) {
		return invalidPackage("the package must declare exactly one package type, %q", SymbolsPackageType)
	}

	pdbs := 0
	for _, e := range r.Entries() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasSuffix(e.Name, "/") {
			continue
		}
		ext := strings.ToLower(path.Ext(e.Name))
		if _, ok := allowedExtensions[ext]; !ok {
			return invalidData("the symbols package contains the disallowed file %q; only .pdb files and package metadata are allowed", e.Name)
		}
		if ext != ".pdb" {
			continue
		}
		pdbs++
		if err := checkPortablePDB(e); err != nil {
			return err
		}
	}
	if pdbs == 0 {
		return invalidData("the symbols package does not contain any .pdb files")
	}
	return nil
}

func checkPortablePDB(e archive.Entry) error {
	rc, err := e.Open()
	if err != nil {
		return &ValidationError{Kind: KindEntity, Message: fmt.Sprintf("the file %q could not be read", e.Name), Err: err}
	}
	defer rc.Close()

	head := make([]byte, len(portablePDBSignature))
	if _, err := io.ReadFull(rc, head); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return invalidData("the file %q is not a portable PDB", e.Name)
		}
		return &ValidationError{Kind: KindEntity, Message: fmt.Sprintf("the file %q could not be read", e.Name), Err: err}
	}
	if !bytes.Equal(head, portablePDBSignature) {
		return invalidData("the file %q is not a portable PDB", e.Name)
	}
	return nil
}
