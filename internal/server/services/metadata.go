package services

import (
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/RightsTracker/NuGetGallery/internal/common"
	"github.com/RightsTracker/NuGetGallery/internal/server/models"
)

// ComputeStreamMetadata hashes the whole stream with SHA-512 and measures it.
// The stream is rewound before and after reading.
func ComputeStreamMetadata(r io.ReadSeeker) (models.PackageStreamMetadata, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return models.PackageStreamMetadata{}, fmt.Errorf("rewind stream: %w", err)
	}

	h := sha512.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return models.PackageStreamMetadata{}, fmt.Errorf("hash stream: %w", err)
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return models.PackageStreamMetadata{}, fmt.Errorf("rewind stream: %w", err)
	}

	return models.PackageStreamMetadata{
		HashAlgorithm: common.HashAlgorithmSHA512,
		Hash:          base64.StdEncoding.EncodeToString(h.Sum(nil)),
		Size:          n,
	}, nil
}

func streamSize(r io.Seeker) (int64, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("measure stream: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind stream: %w", err)
	}
	return size, nil
}
