// YAML configuration file support, mainly for the CLI.
package s3kit

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML schema. Durations are strings in time.Duration
// syntax ("90s", "2h"); sizes are bytes.
type fileConfig struct {
	Endpoint         string `yaml:"endpoint"`
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	SessionToken     string `yaml:"session_token"`
	VirtualHostStyle bool   `yaml:"virtual_host_style"`
	SignatureExpiry  string `yaml:"signature_expiry"`
	Timeout          string `yaml:"timeout"`
	ChunkSize        int64  `yaml:"chunk_size"`
}

// LoadOptions reads a YAML config file and returns the equivalent options.
// Fields absent from the file are left at their defaults; options appended
// after these override them.
func LoadOptions(path string) ([]Option, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	var opts []Option
	if fc.Endpoint != "" {
		opts = append(opts, WithEndpoint(fc.Endpoint))
	}
	if fc.Region != "" {
		opts = append(opts, WithRegion(fc.Region))
	}
	if fc.AccessKey != "" || fc.SecretKey != "" {
		opts = append(opts, WithCredentials(fc.AccessKey, fc.SecretKey))
	}
	if fc.SessionToken != "" {
		opts = append(opts, WithSessionToken(fc.SessionToken))
	}
	if fc.VirtualHostStyle {
		opts = append(opts, WithVirtualHostStyle(true))
	}
	if fc.SignatureExpiry != "" {
		d, err := time.ParseDuration(fc.SignatureExpiry)
		if err != nil {
			return nil, fmt.Errorf("parsing signature_expiry: %w", err)
		}
		opts = append(opts, WithSignatureExpiry(d))
	}
	if fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parsing timeout: %w", err)
		}
		opts = append(opts, WithTimeout(d))
	}
	if fc.ChunkSize != 0 {
		opts = append(opts, WithChunkSize(fc.ChunkSize))
	}
	return opts, nil
}
