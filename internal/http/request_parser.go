// Package http provides the HTTP server and handlers.
//
// This file parses request bodies. The JSON API and the dashboard's HTML forms
// share handlers, so bodies may be JSON or form encoded.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ricorrenti/internal/core"
	"ricorrenti/internal/services"

	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 16

// errBadRequest marks malformed input that is not a domain validation error.
var errBadRequest = errors.New("bad request")

// RequestBodyParser reads a JSON or form-encoded body once and exposes its
// fields as strings.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = fmt.Errorf("%w: body exceeds %d bytes", errBadRequest, maxBodyBytes)
	}
	return p
}

// Parse decodes the body as JSON when it looks like an object, else as a form.
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

	if body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal([]byte(body), &p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(body)
	if p.err != nil {
		p.err = fmt.Errorf("%w: invalid form: %v", errBadRequest, p.err)
	}
	return p.err
}

// Get returns the sanitized value of key, or "".
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

// Has reports whether key was sent at all.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	return p.formData != nil && p.formData.Has(key)
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// parseExpenseInput reads description, category, amount and frequency.
func parseExpenseInput(p *RequestBodyParser) (services.ExpenseInput, error) {
	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return services.ExpenseInput{}, err
	}
	freq, err := core.ParseFrequency(p.Get("frequency"))
	if err != nil {
		return services.ExpenseInput{}, err
	}
	return services.ExpenseInput{
		Description: p.Get("description"),
		Category:    p.Get("category"),
		Amount:      amount,
		Frequency:   freq,
	}, nil
}

// parseEvent reads an externally produced expense event. changed_at is
// RFC 3339; amount may be zero for pause/activate/delete.
func parseEvent(p *RequestBodyParser) (core.ExpenseEvent, error) {
	ev := core.ExpenseEvent{
		ExpenseID: p.Get("expense_id"),
		Type:      core.EventType(strings.ToLower(p.Get("event_type"))),
	}

	var err error
	if ev.Frequency, err = core.ParseFrequency(p.Get("frequency")); err != nil {
		return core.ExpenseEvent{}, err
	}

	if raw := p.Get("amount"); raw != "" {
		amount, err := decimal.NewFromString(strings.Replace(raw, ",", ".", 1))
		if err != nil {
			return core.ExpenseEvent{}, fmt.Errorf("%w: %q", core.ErrInvalidAmount, raw)
		}
		ev.Amount = amount.Round(2)
	}

	if p.Has("is_active") {
		if ev.IsActive, err = strconv.ParseBool(p.Get("is_active")); err != nil {
			return core.ExpenseEvent{}, fmt.Errorf("%w: is_active must be a boolean", errBadRequest)
		}
	}

	if raw := p.Get("changed_at"); raw != "" {
		if ev.ChangedAt, err = time.Parse(time.RFC3339, raw); err != nil {
			return core.ExpenseEvent{}, fmt.Errorf("%w: changed_at must be RFC 3339", errBadRequest)
		}
	}

	return ev, ev.Validate()
}
