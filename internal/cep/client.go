// Package cep resolves Brazilian postal codes against a ViaCEP-compatible
// lookup service. The collaborator is treated as a black box: a failed lookup
// degrades to manual address entry, never to a retry loop.
package cep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"vacenf.org/internal/registry"
)

var (
	// ErrInvalidCode indicates the code does not reduce to exactly 8 digits.
	ErrInvalidCode = errors.New("cep: code must have exactly 8 digits")
	// ErrNotFound indicates the service answered but knows no such code.
	ErrNotFound = errors.New("cep: code not found")
)

var nonDigits = regexp.MustCompile(`\D`)

// Normalize strips formatting characters and reports whether the result is a
// complete 8-digit code. Lookups fire only when complete is true.
func Normalize(code string) (digits string, complete bool) {
	digits = nonDigits.ReplaceAllString(code, "")
	return digits, len(digits) == 8
}

// Result is the subset of the lookup response the address form consumes.
type Result struct {
	CEP        string `json:"cep"`
	Logradouro string `json:"logradouro"`
	Bairro     string `json:"bairro"`
	Localidade string `json:"localidade"`
	UF         string `json:"uf"`
	Erro       bool   `json:"erro,omitempty"`
}

// MergeInto overwrites the looked-up fields of addr while preserving anything
// the user already typed that the lookup does not return (numero, complemento).
func (r Result) MergeInto(addr *registry.Address) {
	addr.CEP = nonDigits.ReplaceAllString(r.CEP, "")
	if r.Logradouro != "" {
		addr.Logradouro = r.Logradouro
	}
	if r.Bairro != "" {
		addr.Bairro = r.Bairro
	}
	if r.Localidade != "" {
		addr.Localidade = r.Localidade
	}
	if r.UF != "" {
		addr.UF = r.UF
	}
}

// Client queries the postal-code service with a fixed per-request timeout.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL (e.g. https://viacep.com.br/ws).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Lookup resolves a postal code. Network and decode failures are terminal for
// the attempt; the caller falls back to manual entry.
func (c *Client) Lookup(ctx context.Context, code string) (Result, error) {
	digits, complete := Normalize(code)
	if !complete {
		return Result{}, ErrInvalidCode
	}

	url := fmt.Sprintf("%s/%s/json", c.baseURL, digits)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("cep lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("cep lookup: unexpected status %d", resp.StatusCode)
	}
	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("cep lookup: decode: %w", err)
	}
	if out.Erro {
		return Result{}, ErrNotFound
	}
	return out, nil
}
