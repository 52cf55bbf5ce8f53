package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"vacenf.org/internal/audit"
	"vacenf.org/internal/auth"
	"vacenf.org/internal/cep"
	"vacenf.org/internal/draft"
	"vacenf.org/internal/forms"
	"vacenf.org/internal/registry"
)

const birthDateLayout = "02/01/2006"

type registrationRequest struct {
	Nome       string `json:"nome"`
	Registro   string `json:"registro"`
	Ocupacao   string `json:"ocupacao"`
	Email      string `json:"email"`
	Nascimento string `json:"nascimento"` // dd/mm/aaaa
	CPF        string `json:"cpf"`
	Senha      string `json:"senha"`
}

type registrationResponse struct {
	ID           string `json:"id"`
	ProximaEtapa string `json:"proximaEtapa"`
}

// handleRegistrationCollection starts a professional registration: the first
// wizard step stages personal data and returns a draft id for the address step.
func (a *API) handleRegistrationCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req registrationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	form := forms.New().
		Add("nome", forms.Required).
		Add("registro", forms.Required).
		Add("ocupacao", forms.Required).
		Add("email", forms.Required).
		Add("nascimento", forms.Required).
		Add("cpf", forms.Required).
		Add("senha", forms.Required)
	form.Set("nome", req.Nome)
	form.Set("registro", req.Registro)
	form.Set("ocupacao", req.Ocupacao)
	form.Set("email", req.Email)
	form.Set("nascimento", req.Nascimento)
	form.Set("cpf", req.CPF)
	form.Set("senha", req.Senha)
	if v := form.Validate(); !v.Empty() {
		writeViolations(w, r, v)
		return
	}

	nascimento, err := time.Parse(birthDateLayout, strings.TrimSpace(req.Nascimento))
	if err != nil {
		writeViolations(w, r, map[string]string{"nascimento": "data inválida (use dd/mm/aaaa)"})
		return
	}

	hash, err := auth.HashPassword(req.Senha)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	id := a.drafts.Put(draft.Registration{
		Nome:       strings.TrimSpace(req.Nome),
		Registro:   strings.TrimSpace(req.Registro),
		Ocupacao:   strings.TrimSpace(req.Ocupacao),
		Email:      strings.TrimSpace(strings.ToLower(req.Email)),
		Nascimento: nascimento,
		CPF:        strings.TrimSpace(req.CPF),
		SenhaHash:  hash,
	})

	writeResult(w, http.StatusCreated, registrationResponse{
		ID:           id,
		ProximaEtapa: "endereco",
	})
}

func (a *API) handleRegistrationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/cadastro/")
	segments := strings.Split(path, "/")
	if segments[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id := segments[0]

	switch {
	case len(segments) == 2 && segments[1] == "endereco" && r.Method == http.MethodPut:
		a.stageAddress(w, r, id)
	case len(segments) == 2 && segments[1] == "confirmar" && r.Method == http.MethodPost:
		a.confirmRegistration(w, r, id)
	case len(segments) == 1 && r.Method == http.MethodDelete:
		a.cancelRegistration(w, r, id)
	case len(segments) == 1 && r.Method == http.MethodGet:
		a.getRegistration(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

type addressRequest struct {
	CEP         string `json:"cep"`
	Logradouro  string `json:"logradouro"`
	Numero      string `json:"numero"`
	Complemento string `json:"complemento"`
	Bairro      string `json:"bairro"`
	Localidade  string `json:"localidade"`
	UF          string `json:"uf"`
}

// stageAddress records the address step. A complete CEP triggers a lookup and
// the resolved street fields overwrite the typed ones; numero and complemento
// always survive the merge. A failed lookup keeps manual entry.
func (a *API) stageAddress(w http.ResponseWriter, r *http.Request, id string) {
	reg, ok := a.drafts.Get(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "cadastro não encontrado ou expirado")
		return
	}

	var req addressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	form := forms.New().
		Add("cep", forms.Required, forms.CEP).
		Add("numero", forms.Required)
	form.Set("cep", req.CEP)
	form.Set("numero", req.Numero)
	if v := form.Validate(); !v.Empty() {
		writeViolations(w, r, v)
		return
	}

	addr := registry.Address{
		CEP:         req.CEP,
		Logradouro:  req.Logradouro,
		Numero:      req.Numero,
		Complemento: req.Complemento,
		Bairro:      req.Bairro,
		Localidade:  req.Localidade,
		UF:          req.UF,
	}
	if a.cep != nil {
		if res, err := a.cep.Lookup(r.Context(), req.CEP); err == nil {
			res.MergeInto(&addr)
		}
	}

	reg.Endereco = addr
	reg.HasAddress = true
	if !a.drafts.Update(id, reg) {
		writeError(w, r, http.StatusNotFound, "cadastro não encontrado ou expirado")
		return
	}

	writeResult(w, http.StatusOK, map[string]any{
		"id":           id,
		"endereco":     addr,
		"proximaEtapa": "confirmar",
	})
}

// confirmRegistration commits the staged draft as a professional account.
func (a *API) confirmRegistration(w http.ResponseWriter, r *http.Request, id string) {
	reg, ok := a.drafts.Get(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "cadastro não encontrado ou expirado")
		return
	}
	if !reg.HasAddress {
		writeError(w, r, http.StatusConflict, "etapa de endereço pendente")
		return
	}

	prof, err := a.registry.CreateProfessional(r.Context(), registry.Professional{
		Nome:         reg.Nome,
		Registro:     reg.Registro,
		Ocupacao:     reg.Ocupacao,
		Email:        reg.Email,
		Nascimento:   reg.Nascimento,
		CPF:          reg.CPF,
		Admin:        reg.Admin,
		Endereco:     reg.Endereco,
		PasswordHash: reg.SenhaHash,
	})
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}

	a.drafts.Delete(id)
	_ = audit.LogEvent(r.Context(), "registration.confirm", map[string]any{
		"profissional_id": prof.ID,
	})
	writeResult(w, http.StatusCreated, prof)
}

func (a *API) cancelRegistration(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.drafts.Get(id); !ok {
		writeError(w, r, http.StatusNotFound, "cadastro não encontrado ou expirado")
		return
	}
	a.drafts.Delete(id)
	writeResult(w, http.StatusOK, map[string]any{"status": "cancelado"})
}

func (a *API) getRegistration(w http.ResponseWriter, r *http.Request, id string) {
	reg, ok := a.drafts.Get(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "cadastro não encontrado ou expirado")
		return
	}
	writeResult(w, http.StatusOK, reg)
}

func handleCEPError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cep.ErrInvalidCode):
		writeError(w, r, http.StatusBadRequest, "CEP deve ter 8 dígitos")
	case errors.Is(err, cep.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "CEP não encontrado")
	default:
		writeError(w, r, http.StatusBadGateway, "consulta de CEP falhou")
	}
}
