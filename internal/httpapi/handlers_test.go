package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vacenf.org/internal/auth"
	"vacenf.org/internal/draft"
	"vacenf.org/internal/registry"
	"vacenf.org/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	alerts  *stream.Stream
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("VACENF_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	reg := registry.NewInMemory()
	if err := registry.SeedDemo(context.Background(), reg); err != nil {
		t.Fatalf("SeedDemo: %v", err)
	}
	drafts := draft.NewStore(time.Minute)
	t.Cleanup(drafts.Close)
	alerts := stream.New()

	api := New(ReadyProbe{}, reg, alerts, drafts, nil, Config{
		Version:       "test",
		TokenTTL:      time.Hour,
		RateBurst:     1000,
		RatePerSecond: 1000,
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		alerts:  alerts,
	}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) decode(resp *http.Response, dst any) {
	c.t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		c.t.Fatalf("decode envelope: %v", err)
	}
	if dst == nil {
		return
	}
	if err := json.Unmarshal(envelope.Result, dst); err != nil {
		c.t.Fatalf("decode result: %v", err)
	}
}

func (c *apiClient) login() (string, registry.Professional) {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/auth/login", map[string]string{
		"email": registry.DemoEmail,
		"senha": registry.DemoPassword,
	}, "")
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login status: %d", resp.StatusCode)
	}
	var session struct {
		Token        string                `json:"token"`
		Profissional registry.Professional `json:"profissional"`
	}
	c.decode(resp, &session)
	if session.Token == "" {
		c.t.Fatal("login returned empty token")
	}
	return session.Token, session.Profissional
}

func (c *apiClient) openWorkDay(token, salaNumero string) registry.WorkDayBinding {
	c.t.Helper()
	var rooms []registry.Room
	resp := c.do(http.MethodGet, "/salas", nil, token)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("list rooms status: %d", resp.StatusCode)
	}
	c.decode(resp, &rooms)

	var salaID string
	for _, room := range rooms {
		if room.Numero == salaNumero {
			salaID = room.ID
		}
	}
	if salaID == "" {
		c.t.Fatalf("room %s not seeded", salaNumero)
	}

	resp = c.do(http.MethodPost, "/dia-trabalho", map[string]string{"salaId": salaID}, token)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("work day status: %d", resp.StatusCode)
	}
	var binding registry.WorkDayBinding
	c.decode(resp, &binding)
	return binding
}

func (c *apiClient) unitByName(binding registry.WorkDayBinding, name string) registry.StorageUnit {
	c.t.Helper()
	for _, unit := range binding.Estoques {
		if unit.Nome == name {
			return unit
		}
	}
	c.t.Fatalf("unit %s not in binding", name)
	return registry.StorageUnit{}
}

func TestLoginMeAndLogout(t *testing.T) {
	c := newTestAPI(t)

	token, prof := c.login()
	if prof.Email != registry.DemoEmail {
		t.Fatalf("unexpected professional: %+v", prof)
	}

	resp := c.do(http.MethodGet, "/auth/me", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status: %d", resp.StatusCode)
	}
	var me registry.Professional
	c.decode(resp, &me)
	if me.ID != prof.ID {
		t.Fatalf("me returned different professional: %s vs %s", me.ID, prof.ID)
	}
	if me.PasswordHash != "" {
		t.Fatal("password hash leaked in response")
	}

	resp = c.do(http.MethodPost, "/auth/logout", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodPost, "/auth/login", map[string]string{
		"email": registry.DemoEmail,
		"senha": "senha-errada",
	}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestLoginSetsSessionCookie(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodPost, "/auth/login", map[string]string{
		"email": registry.DemoEmail,
		"senha": registry.DemoPassword,
	}, "")
	defer resp.Body.Close()

	var cookie *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == sessionCookie {
			cookie = ck
		}
	}
	if cookie == nil {
		t.Fatal("login did not set the session cookie")
	}
	if !cookie.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}

	// The cookie alone must authenticate /auth/me.
	req, _ := http.NewRequest(http.MethodGet, c.baseURL+"/auth/me", nil)
	req.AddCookie(cookie)
	meResp, err := c.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer meResp.Body.Close()
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("cookie auth failed: %d", meResp.StatusCode)
	}
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodPost, "/dia-trabalho", map[string]string{"salaId": "s1"}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWorkDayIsIdempotentPerDay(t *testing.T) {
	c := newTestAPI(t)
	token, _ := c.login()

	first := c.openWorkDay(token, "101")
	if len(first.Estoques) != 2 {
		t.Fatalf("expected 2 storage units in room 101, got %d", len(first.Estoques))
	}
	second := c.openWorkDay(token, "101")
	if first.DiaTrabalho.ID != second.DiaTrabalho.ID {
		t.Fatal("same-day selection must reuse the existing work day")
	}
}

func TestTemperatureReadingsFlagAndAlert(t *testing.T) {
	c := newTestAPI(t)
	token, _ := c.login()
	binding := c.openWorkDay(token, "101")
	freezer := c.unitByName(binding, "Freezer 01")
	fridge := c.unitByName(binding, "Geladeira 01")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alerts := c.alerts.Subscribe(ctx)

	resp := c.do(http.MethodPost, "/reg-temperatura", []map[string]any{
		{"estoqueId": freezer.ID, "temperatura": -18.0},
		{"estoqueId": fridge.ID, "temperatura": 12.5},
	}, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("readings status: %d", resp.StatusCode)
	}
	var readings []registry.TemperatureReading
	c.decode(resp, &readings)
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(readings))
	}
	if readings[0].ForaDaFaixa || !readings[1].ForaDaFaixa {
		t.Fatalf("range flags wrong: %+v", readings)
	}

	select {
	case alert := <-alerts:
		if alert.EstoqueID != fridge.ID || alert.Temperatura != 12.5 {
			t.Fatalf("unexpected alert: %+v", alert)
		}
		if alert.Estoque != "Geladeira 01" {
			t.Fatalf("alert not enriched with unit name: %+v", alert)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("out-of-range reading did not publish an alert")
	}
}

func TestEmptyReadingBatchRejected(t *testing.T) {
	c := newTestAPI(t)
	token, _ := c.login()

	resp := c.do(http.MethodPost, "/reg-temperatura", []map[string]any{}, token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %d", resp.StatusCode)
	}
}

func TestStockDiscardAndTransfer(t *testing.T) {
	c := newTestAPI(t)
	token, _ := c.login()
	binding := c.openWorkDay(token, "101")
	freezer := c.unitByName(binding, "Freezer 01")

	resp := c.do(http.MethodGet, "/vacina-estoque/covid19/"+freezer.ID, nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stock lookup status: %d", resp.StatusCode)
	}
	var line registry.StockLine
	c.decode(resp, &line)
	if line.Quantidade != 120 {
		t.Fatalf("expected 120 doses seeded, got %d", line.Quantidade)
	}

	// Over-discard is rejected and nothing changes.
	resp = c.do(http.MethodDelete, "/vacina-estoque/"+line.ID, map[string]int{"quantidade": 121}, token)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for over-discard, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodDelete, "/vacina-estoque/"+line.ID, map[string]int{"quantidade": 30}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("discard status: %d", resp.StatusCode)
	}
	c.decode(resp, &line)
	if line.Quantidade != 90 {
		t.Fatalf("expected 90 after discard, got %d", line.Quantidade)
	}

	// Transfer to the same unit must fail.
	resp = c.do(http.MethodPost, "/transferencia", map[string]any{
		"origemId":        freezer.ID,
		"destinoId":       freezer.ID,
		"vacinaEstoqueId": line.ID,
		"quantidade":      10,
	}, token)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for same-unit transfer, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	other := c.openWorkDay(token, "102")
	dest := c.unitByName(other, "Geladeira 02")

	resp = c.do(http.MethodPost, "/transferencia", map[string]any{
		"origemId":        freezer.ID,
		"destinoId":       dest.ID,
		"vacinaEstoqueId": line.ID,
		"quantidade":      40,
	}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("transfer status: %d", resp.StatusCode)
	}
	var moved registry.StockLine
	c.decode(resp, &moved)
	if moved.EstoqueID != dest.ID || moved.Quantidade != 40 {
		t.Fatalf("unexpected moved line: %+v", moved)
	}

	resp = c.do(http.MethodGet, "/vacina-estoque/covid19/"+freezer.ID, nil, token)
	c.decode(resp, &line)
	if line.Quantidade != 50 {
		t.Fatalf("expected 50 left at origin, got %d", line.Quantidade)
	}
}

func TestCleaningRegistration(t *testing.T) {
	c := newTestAPI(t)
	token, _ := c.login()
	binding := c.openWorkDay(token, "101")

	resp := c.do(http.MethodPost, "/reg-limpeza", map[string]string{
		"salaId":     binding.Sala.ID,
		"produto":    "hipoclorito 1%",
		"observacao": "limpeza terminal",
	}, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("cleaning status: %d", resp.StatusCode)
	}
	var rec registry.CleaningRecord
	c.decode(resp, &rec)
	if rec.SalaID != binding.Sala.ID || rec.Produto != "hipoclorito 1%" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestRegistrationWizardFlow(t *testing.T) {
	c := newTestAPI(t)

	// Step 1: personal data, no authentication required.
	resp := c.do(http.MethodPost, "/cadastro", map[string]string{
		"nome":       "Ana Souza",
		"registro":   "COREN-654321",
		"ocupacao":   "Enfermeira",
		"email":      "ana@vacenf.org",
		"nascimento": "23/09/1990",
		"cpf":        "98765432100",
		"senha":      "senha-forte",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("cadastro status: %d", resp.StatusCode)
	}
	var created registrationResponse
	c.decode(resp, &created)
	if created.ID == "" || created.ProximaEtapa != "endereco" {
		t.Fatalf("unexpected draft response: %+v", created)
	}

	// Confirming before the address step is rejected.
	resp = c.do(http.MethodPost, "/cadastro/"+created.ID+"/confirmar", nil, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 before address step, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Step 2: address.
	resp = c.do(http.MethodPut, "/cadastro/"+created.ID+"/endereco", map[string]string{
		"cep":         "04038-001",
		"logradouro":  "Rua Vergueiro",
		"numero":      "3185",
		"complemento": "bloco B",
		"bairro":      "Vila Mariana",
		"localidade":  "São Paulo",
		"uf":          "SP",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("endereco status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Step 3: confirm commits the professional.
	resp = c.do(http.MethodPost, "/cadastro/"+created.ID+"/confirmar", nil, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("confirmar status: %d", resp.StatusCode)
	}
	var prof registry.Professional
	c.decode(resp, &prof)
	if prof.Email != "ana@vacenf.org" || prof.Endereco.Numero != "3185" {
		t.Fatalf("unexpected professional: %+v", prof)
	}

	// The draft is gone after commit.
	resp = c.do(http.MethodGet, "/cadastro/"+created.ID, nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after commit, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// And the new account can log in.
	resp = c.do(http.MethodPost, "/auth/login", map[string]string{
		"email": "ana@vacenf.org",
		"senha": "senha-forte",
	}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login with new account failed: %d", resp.StatusCode)
	}
}

func TestRegistrationValidation(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodPost, "/cadastro", map[string]string{
		"nome":  "",
		"email": "ana@vacenf.org",
	}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	var payload struct {
		Campos map[string]string `json:"campos"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Campos["nome"] != "campo obrigatório" {
		t.Fatalf("missing nome violation: %v", payload.Campos)
	}
	if _, ok := payload.Campos["senha"]; !ok {
		t.Fatalf("missing senha violation: %v", payload.Campos)
	}
}

func TestRegistrationCancel(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodPost, "/cadastro", map[string]string{
		"nome":       "Ana Souza",
		"registro":   "COREN-654321",
		"ocupacao":   "Enfermeira",
		"email":      "ana@vacenf.org",
		"nascimento": "23/09/1990",
		"cpf":        "98765432100",
		"senha":      "senha-forte",
	}, "")
	var created registrationResponse
	c.decode(resp, &created)

	resp = c.do(http.MethodDelete, "/cadastro/"+created.ID, nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/cadastro/"+created.ID, nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after cancel, got %d", resp.StatusCode)
	}
}

func TestAdminGuards(t *testing.T) {
	c := newTestAPI(t)
	token, _ := c.login()

	// Create a non-admin account through the registration flow.
	resp := c.do(http.MethodPost, "/cadastro", map[string]string{
		"nome":       "Carlos Lima",
		"registro":   "COREN-111222",
		"ocupacao":   "Técnico de Enfermagem",
		"email":      "carlos@vacenf.org",
		"nascimento": "02/02/1995",
		"cpf":        "11122233344",
		"senha":      "outra-senha",
	}, "")
	var created registrationResponse
	c.decode(resp, &created)
	resp = c.do(http.MethodPut, "/cadastro/"+created.ID+"/endereco", map[string]string{
		"cep":    "01310100",
		"numero": "100",
	}, "")
	resp.Body.Close()
	resp = c.do(http.MethodPost, "/cadastro/"+created.ID+"/confirmar", nil, "")
	resp.Body.Close()

	loginResp := c.do(http.MethodPost, "/auth/login", map[string]string{
		"email": "carlos@vacenf.org",
		"senha": "outra-senha",
	}, "")
	var session struct {
		Token string `json:"token"`
	}
	c.decode(loginResp, &session)

	// Non-admin cannot create rooms; admin can.
	resp = c.do(http.MethodPost, "/salas", map[string]string{"numero": "201"}, session.Token)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/salas", map[string]string{"numero": "201", "rotulo": "Anexo"}, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("admin room create status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealthAndReady(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodGet, "/healthz", nil, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", resp.StatusCode)
	}

	ready := c.do(http.MethodGet, "/readyz", nil, "")
	defer ready.Body.Close()
	if ready.StatusCode != http.StatusOK {
		t.Fatalf("readyz status: %d", ready.StatusCode)
	}
}
