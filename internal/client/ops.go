package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"vacenf.org/internal/registry"
)

// ReadingPayload is one temperature measurement to submit.
type ReadingPayload struct {
	EstoqueID   string  `json:"estoqueId"`
	Temperatura float64 `json:"temperatura"`
}

// OpenWorkDay binds the authenticated professional to a room for today and
// returns the room's storage units.
func (c *Client) OpenWorkDay(ctx context.Context, salaID string) (registry.WorkDayBinding, error) {
	var binding registry.WorkDayBinding
	err := c.doJSON(ctx, http.MethodPost, "/dia-trabalho", map[string]string{"salaId": salaID}, &binding, true)
	return binding, err
}

// ListRooms fetches the selectable vaccine rooms.
func (c *Client) ListRooms(ctx context.Context) ([]registry.Room, error) {
	var rooms []registry.Room
	err := c.doJSON(ctx, http.MethodGet, "/salas", nil, &rooms, true)
	return rooms, err
}

// RecordReadings submits a batch of temperature measurements.
func (c *Client) RecordReadings(ctx context.Context, batch []ReadingPayload) ([]registry.TemperatureReading, error) {
	var readings []registry.TemperatureReading
	err := c.doJSON(ctx, http.MethodPost, "/reg-temperatura", batch, &readings, true)
	return readings, err
}

// RegistrationDraft is the server acknowledgement of the first wizard step.
type RegistrationDraft struct {
	ID           string `json:"id"`
	ProximaEtapa string `json:"proximaEtapa"`
}

// StartRegistration stages the personal-data step of a new account.
func (c *Client) StartRegistration(ctx context.Context, personal map[string]string) (RegistrationDraft, error) {
	var draft RegistrationDraft
	err := c.doJSON(ctx, http.MethodPost, "/cadastro", personal, &draft, false)
	return draft, err
}

// StageAddress records the address step of a staged registration.
func (c *Client) StageAddress(ctx context.Context, draftID string, address map[string]string) error {
	return c.doJSON(ctx, http.MethodPut, "/cadastro/"+draftID+"/endereco", address, nil, false)
}

// ConfirmRegistration commits a staged registration into an account.
func (c *Client) ConfirmRegistration(ctx context.Context, draftID string) (registry.Professional, error) {
	var prof registry.Professional
	err := c.doJSON(ctx, http.MethodPost, "/cadastro/"+draftID+"/confirmar", nil, &prof, false)
	return prof, err
}

// CancelRegistration abandons a staged registration.
func (c *Client) CancelRegistration(ctx context.Context, draftID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/cadastro/"+draftID, nil, nil, false)
}

// doJSON performs one request and decodes the result envelope into out. Every
// call carries the fixed client timeout; there are no retries.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any, authed bool) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token, ok := c.store.Token()
		if !ok {
			return ErrTokenMissing
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return json.Unmarshal(envelope.Result, out)
}
