// Package target defines monitored pages and their content-addressed ids.
package target

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrInvalidURL    = errors.New("invalid URL for hashing")
	ErrUnknownTarget = errors.New("unknown URL id")
)

// Target is a monitored URL. ID is always derived from URL.
type Target struct {
	ID    string `json:"id" yaml:"-"`
	URL   string `json:"url" yaml:"url"`
	Label string `json:"label" yaml:"label,omitempty"`
}

// ID returns the stable id of a URL: the hex sha1 of its exact bytes.
func ID(url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", ErrInvalidURL
	}
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:]), nil
}

// New builds a Target, defaulting the label to the url.
func New(url, label string) (Target, error) {
	id, err := ID(url)
	if err != nil {
		return Target{}, err
	}
	if strings.TrimSpace(label) == "" {
		label = url
	}
	return Target{ID: id, URL: url, Label: label}, nil
}
