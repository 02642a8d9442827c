// Package bypass recognizes bot-protection challenge pages so they are not
// mistaken for the content of a monitored page.
package bypass

import (
	"bytes"
	"net/http"
	"slices"
	"strings"
)

// Response is the part of an HTTP response the detectors inspect.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Detector examines a response to determine if a bot protection mechanism
// blocked or challenged the request.
type Detector func(res *Response) (detected bool, vendor string)

// Signature describes how one vendor's block page looks. A response matches
// when its status is listed and any of the header or body markers is present.
type Signature struct {
	Vendor   string
	Statuses []int
	// Server substrings, matched case-insensitively.
	Server []string
	// Header names whose mere presence is a marker.
	Headers []string
	// Body substrings, matched case-sensitively.
	Body []string
}

// Detector turns the signature into a Detector.
func (s Signature) Detector() Detector {
	return func(res *Response) (bool, string) {
		if res == nil || !slices.Contains(s.Statuses, res.StatusCode) {
			return false, ""
		}
		server := strings.ToLower(res.Headers.Get("Server"))
		for _, marker := range s.Server {
			if server != "" && strings.Contains(server, marker) {
				return true, s.Vendor
			}
		}
		for _, name := range s.Headers {
			if res.Headers.Get(name) != "" {
				return true, s.Vendor
			}
		}
		for _, marker := range s.Body {
			if bytes.Contains(res.Body, []byte(marker)) {
				return true, s.Vendor
			}
		}
		return false, ""
	}
}

// DefaultSignatures covers the common CDN and bot-management vendors.
var DefaultSignatures = []Signature{
	{
		Vendor:   "Cloudflare",
		Statuses: []int{http.StatusForbidden, http.StatusServiceUnavailable},
		Server:   []string{"cloudflare"},
		Body:     []string{"cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare"},
	},
	{
		Vendor:   "Akamai",
		Statuses: []int{http.StatusForbidden},
		Server:   []string{"akamai"},
		Body:     []string{"Reference #"},
	},
	{
		Vendor:   "DataDome",
		Statuses: []int{http.StatusForbidden},
		Server:   []string{"datadome"},
		Headers:  []string{"X-DataDome", "X-DataDome-Response"},
		Body:     []string{"geo.captcha-delivery.com", "datadome"},
	},
	{
		Vendor:   "PerimeterX",
		Statuses: []int{http.StatusForbidden},
		Headers:  []string{"X-Px-Captcha"},
		Body:     []string{"client.perimeterx.net", "px-captcha", "_pxBlock"},
	},
}

// DefaultDetectors returns a detector per DefaultSignatures entry.
func DefaultDetectors() []Detector {
	detectors := make([]Detector, 0, len(DefaultSignatures))
	for _, s := range DefaultSignatures {
		detectors = append(detectors, s.Detector())
	}
	return detectors
}

// Analyze runs the response through the detectors and reports the first
// vendor that matched.
func Analyze(res *Response, detectors []Detector) (bool, string) {
	if res == nil {
		return false, ""
	}
	for _, d := range detectors {
		if detected, vendor := d(res); detected {
			return true, vendor
		}
	}
	return false, ""
}
