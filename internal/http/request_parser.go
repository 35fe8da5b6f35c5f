// Package http provides the JSON API over the donation manager and the
// activity feed.
//
// This file implements utilities for parsing and validating request data.
package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"donations/internal/core"
)

const maxBodyBytes = 1 << 20

// RequestBodyParser reads a request body once and serves values from it
// as JSON or form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request. The body is
// limited to 1 MiB.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}

	if body[0] == '{' {
		p.jsonData = make(map[string]any)
		d := json.NewDecoder(strings.NewReader(body))
		d.UseNumber()
		p.err = d.Decode(&p.jsonData)
		return p.err
	}

	p.formData, p.err = url.ParseQuery(body)
	return p.err
}

// Get returns a string value from the parsed data (JSON or form). Control
// characters other than tab and line breaks are removed; line breaks are
// kept so name validation can reject them.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Has reports whether key was present in the body
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	return p.formData != nil && p.formData.Has(key)
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// DonationRequest is the body of POST /api/v1/donations
type DonationRequest struct {
	Name   string
	Amount decimal.Decimal
}

// ParseDonationRequest reads name and amount from a JSON or form body.
// The amount accepts a JSON number or a string with either decimal
// separator.
func ParseDonationRequest(p *RequestBodyParser) (DonationRequest, error) {
	if err := p.Parse(); err != nil {
		return DonationRequest{}, err
	}
	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return DonationRequest{}, err
	}
	return DonationRequest{Name: p.Get("name"), Amount: amount}, nil
}

// sanitizeInput trims whitespace and strips control characters except
// tab, LF and CR.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		if r == 127 {
			return -1
		}
		return r
	}, s)
}
