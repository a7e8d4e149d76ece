// Package common contains shared constants and sentinel errors used across
// the symbol gallery components.
package common

// AuthorizationHeaderName carries the uploader's bearer token.
const AuthorizationHeaderName = "Authorization"

// ApiKeyHeaderName is accepted as an alternative to the bearer token, matching
// the header used by package push clients.
const ApiKeyHeaderName = "X-NuGet-ApiKey"

// HashAlgorithmSHA512 is the only hash algorithm recorded for uploaded
// symbol packages.
const HashAlgorithmSHA512 = "SHA512"

// SymbolsPackageExtension is the file extension of symbol packages in blob storage.
const SymbolsPackageExtension = ".snupkg"
