// Package validation checks tool-call inputs before they reach the engine.
// Violations surface as validation errors in the response envelope and are
// never retried.
package validation

import (
	"net/url"
	"strings"

	ragerr "github.com/ragmill/ragmill/internal/errors"
)

// URL requires an absolute http or https URL.
func URL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return ragerr.ValidationError("url is required", nil)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ragerr.ValidationError("malformed url: "+rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ragerr.ValidationError("url must be http or https: "+rawURL, nil)
	}
	if u.Host == "" {
		return ragerr.ValidationError("url is missing a host: "+rawURL, nil)
	}
	return nil
}

// Query requires a non-blank query string.
func Query(q string) error {
	if strings.TrimSpace(q) == "" {
		return ragerr.ValidationError("query is required", nil)
	}
	return nil
}

// Strategy requires one of the adaptive crawl disciplines.
func Strategy(name string, allowed ...string) error {
	for _, a := range allowed {
		if name == a {
			return nil
		}
	}
	return ragerr.New(ragerr.ErrCodeUnknownStrategy,
		"unknown strategy: "+name+" (expected "+strings.Join(allowed, ", ")+")", nil)
}

// Range requires min <= v <= max. Used for depths, counts and thresholds.
func Range(name string, v, min, max float64) error {
	if v < min || v > max {
		return ragerr.New(ragerr.ErrCodeOutOfRange,
			name+" is out of range", nil)
	}
	return nil
}
