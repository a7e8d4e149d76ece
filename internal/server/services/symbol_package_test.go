package services

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"io"
	"testing"
	"time"

	"github.com/RightsTracker/NuGetGallery/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSymbolPackage(t *testing.T) {
	svc := NewSymbolPackageService(&fakeChecker{})
	svc.now = func() time.Time { return fixedNow }

	pkg := newPackage(models.PackageStatusDeleted)
	meta := models.PackageStreamMetadata{HashAlgorithm: "SHA512", Hash: "abc=", Size: 12}

	sp, err := svc.CreateSymbolPackage(pkg, meta)
	require.NoError(t, err)
	assert.Same(t, pkg, sp.Package)
	assert.Equal(t, pkg.Key, sp.PackageKey)
	assert.Equal(t, "abc=", sp.Hash)
	assert.Equal(t, int64(12), sp.Size)
	assert.True(t, sp.IsNew())
	assert.True(t, fixedNow.Equal(sp.Created))
	assert.Len(t, pkg.SymbolPackages, 2)
	assert.Same(t, sp, pkg.SymbolPackages[1])
}

func TestCreateSymbolPackage_Errors(t *testing.T) {
	svc := NewSymbolPackageService(&fakeChecker{})

	_, err := svc.CreateSymbolPackage(nil, models.PackageStreamMetadata{HashAlgorithm: "SHA512", Hash: "x"})
	assert.Error(t, err)

	_, err = svc.CreateSymbolPackage(newPackage(), models.PackageStreamMetadata{})
	assert.Error(t, err)
}

func TestSymbolPackageService_EnsureValidDelegates(t *testing.T) {
	checker := &fakeChecker{err: errBoom}
	svc := NewSymbolPackageService(checker)
	assert.ErrorIs(t, svc.EnsureValid(context.Background(), nil), errBoom)
	assert.Equal(t, 1, checker.calls)
}

func TestComputeStreamMetadata(t *testing.T) {
	data := []byte("symbols package payload")
	r := bytes.NewReader(data)
	_, _ = r.Seek(5, io.SeekStart)

	meta, err := ComputeStreamMetadata(r)
	require.NoError(t, err)

	sum := sha512.Sum512(data)
	assert.Equal(t, "SHA512", meta.HashAlgorithm)
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), meta.Hash)
	assert.Equal(t, int64(len(data)), meta.Size)

	pos, _ := r.Seek(0, io.SeekCurrent)
	assert.Zero(t, pos, "stream is rewound")
}

func TestResultCode_String(t *testing.T) {
	assert.Equal(t, "created", ResultCreated.String())
	assert.Equal(t, "conflict", ResultConflict.String())
	assert.Equal(t, "unknown", ResultCode(99).String())
}
