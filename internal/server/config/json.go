package config

import (
	"encoding/json"
	"os"

	"github.com/RightsTracker/NuGetGallery/internal/flagx"
	"github.com/RightsTracker/NuGetGallery/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "30s" and integer nanoseconds. Pointer fields tell
// "absent" apart from an explicit false or zero.
type JsonConfig struct {
	EndpointAddrHTTP           string          `json:"endpoint_addr_http"`
	DatabaseDSN                string          `json:"database_dsn"`
	SecretKey                  string          `json:"secret_key"`
	S3RootUser                 string          `json:"s3_root_user"`
	S3RootPassword             string          `json:"s3_root_password"`
	S3Region                   string          `json:"s3_region"`
	S3BaseEndpoint             string          `json:"s3_base_endpoint"`
	S3ValidationBucket         string          `json:"s3_validation_bucket"`
	S3PublicBucket             string          `json:"s3_public_bucket"`
	AsyncValidation            *bool           `json:"async_validation"`
	NatsURL                    string          `json:"nats_url"`
	ValidationSubject          string          `json:"validation_subject"`
	RedisURL                   string          `json:"redis_url"`
	LockTTL                    *timex.Duration `json:"lock_ttl"`
	SymbolsUploadEnabledForAll *bool           `json:"symbols_upload_enabled_for_all"`
	SymbolsUploadAllowList     []string        `json:"symbols_upload_allow_list"`
	MetricsNamespace           string          `json:"metrics_namespace"`
	OTLPEndpoint               string          `json:"otlp_endpoint"`
	SpoolDir                   string          `json:"spool_dir"`
	MaxUploadSize              int64           `json:"max_upload_size"`
	LogLevel                   string          `json:"log_level"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags, or the
// SYMBOLS_CONFIG environment variable. If none is set, no JSON file is loaded.
//
// Only keys present in the file override the current values. If the file
// cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3ValidationBucket, c.S3ValidationBucket)
	setString(&config.S3PublicBucket, c.S3PublicBucket)
	setString(&config.NatsURL, c.NatsURL)
	setString(&config.ValidationSubject, c.ValidationSubject)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.MetricsNamespace, c.MetricsNamespace)
	setString(&config.OTLPEndpoint, c.OTLPEndpoint)
	setString(&config.SpoolDir, c.SpoolDir)
	setString(&config.LogLevel, c.LogLevel)

	if c.AsyncValidation != nil {
		config.AsyncValidation = *c.AsyncValidation
	}
	if c.SymbolsUploadEnabledForAll != nil {
		config.SymbolsUploadEnabledForAll = *c.SymbolsUploadEnabledForAll
	}
	if c.SymbolsUploadAllowList != nil {
		config.SymbolsUploadAllowList = c.SymbolsUploadAllowList
	}
	if c.LockTTL != nil {
		config.LockTTL = c.LockTTL.Duration
	}
	if c.MaxUploadSize > 0 {
		config.MaxUploadSize = c.MaxUploadSize
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
