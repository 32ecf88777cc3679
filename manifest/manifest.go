// Package manifest reads YAML build manifests describing a FAT32
// image: the volume label, the image size and the files to place into
// the root directory.
package manifest

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v2"
)

// File is one file to pack into the image.
type File struct {
	// Path of the source file on the host.
	Path string `yaml:"path"`

	// Name overrides the 8.3 name in the image. Defaults to the
	// base name of Path.
	Name string `yaml:"name,omitempty"`
}

// Manifest is a parsed build manifest.
type Manifest struct {
	// Label is the 11-byte volume label.
	Label string `yaml:"label,omitempty"`

	// Size is the image size, e.g. "64M" or "1G". Plain numbers
	// are bytes.
	Size string `yaml:"size"`

	Files []File `yaml:"files"`
}

// Parse decodes and validates a manifest. Unknown fields are
// rejected so typos do not silently drop configuration.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %v", err)
	}
	if m.Size == "" {
		return nil, fmt.Errorf("manifest: size is required")
	}
	if _, err := ParseSize(m.Size); err != nil {
		return nil, fmt.Errorf("manifest: %v", err)
	}
	for i, f := range m.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("manifest: files[%d]: path is required", i)
		}
	}
	return &m, nil
}

// SizeBytes returns the image size in bytes.
func (m *Manifest) SizeBytes() int64 {
	n, _ := ParseSize(m.Size) // validated in Parse
	return n
}

// ParseSize parses a size with an optional K, M or G suffix in either
// case (binary units). A bare number is bytes.
func ParseSize(s string) (int64, error) {
	mult := int64(1)
	num := s
	if len(s) > 0 {
		switch s[len(s)-1] {
		case 'K', 'k':
			mult, num = 1024, s[:len(s)-1]
		case 'M', 'm':
			mult, num = 1024*1024, s[:len(s)-1]
		case 'G', 'g':
			mult, num = 1024*1024*1024, s[:len(s)-1]
		}
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q, want a positive number with an optional K, M or G suffix", s)
	}
	return n * mult, nil
}
