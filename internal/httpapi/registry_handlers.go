package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"vacenf.org/internal/audit"
	"vacenf.org/internal/auth"
	"vacenf.org/internal/obs"
	"vacenf.org/internal/registry"
	"vacenf.org/internal/stream"
)

// The session principal is authoritative for the professional; the body field
// is accepted for compatibility with existing callers and ignored.
type workDayRequest struct {
	ProfissionalID string `json:"profissionalId"`
	SalaID         string `json:"salaId"`
}

func (a *API) handleWorkDay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req workDayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.SalaID) == "" {
		writeError(w, r, http.StatusBadRequest, "salaId é obrigatório")
		return
	}

	binding, err := a.registry.OpenWorkDay(r.Context(), principal.ProfessionalID, req.SalaID)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "workday.open", map[string]any{
		"sala_id": binding.Sala.ID,
		"dia":     binding.DiaTrabalho.Dia,
	})
	writeResult(w, http.StatusOK, binding)
}

type readingRequest struct {
	EstoqueID      string  `json:"estoqueId"`
	Temperatura    float64 `json:"temperatura"`
	ProfissionalID string  `json:"profissionalId"`
}

func (a *API) handleReadingsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var reqs []readingRequest
	if err := decodeJSON(w, r, &reqs); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	batch := make([]registry.ReadingInput, 0, len(reqs))
	for _, req := range reqs {
		batch = append(batch, registry.ReadingInput{
			EstoqueID:      req.EstoqueID,
			Temperatura:    req.Temperatura,
			ProfissionalID: principal.ProfessionalID,
		})
	}

	readings, err := a.registry.RecordReadings(r.Context(), batch)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}

	for _, reading := range readings {
		obs.ObserveReading(reading.ForaDaFaixa)
		if reading.ForaDaFaixa {
			a.publishAlert(r, reading)
		}
	}
	_ = audit.LogEvent(r.Context(), "temperature.record", map[string]any{
		"count": len(readings),
	})
	writeResult(w, http.StatusCreated, readings)
}

// publishAlert enriches an out-of-range reading with unit and room names for
// the monitoring feed. Lookup failures degrade to a bare alert.
func (a *API) publishAlert(r *http.Request, reading registry.TemperatureReading) {
	if a.stream == nil {
		return
	}
	alert := stream.TemperatureAlert{
		EstoqueID:      reading.EstoqueID,
		Temperatura:    reading.Temperatura,
		ProfissionalID: reading.ProfissionalID,
		Timestamp:      reading.RegistradoEm,
	}
	if unit, err := a.registry.GetStorageUnit(r.Context(), reading.EstoqueID); err == nil {
		alert.Estoque = unit.Nome
		alert.MinTemp = unit.MinTemp
		alert.MaxTemp = unit.MaxTemp
		if room, err := a.registry.GetRoom(r.Context(), unit.SalaID); err == nil {
			alert.Sala = room.Numero
		}
	}
	a.stream.Publish(alert)
}

func (a *API) handleReadingsResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	estoqueID := strings.TrimPrefix(r.URL.Path, "/reg-temperatura/")
	if estoqueID == "" || strings.Contains(estoqueID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	readings, err := a.registry.ListReadings(r.Context(), estoqueID, limit)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, readings)
}

type stockLineRequest struct {
	VacinaID   string    `json:"vacinaId"`
	Vacina     string    `json:"vacina"`
	Lote       string    `json:"lote"`
	Validade   time.Time `json:"validade"`
	Fabricante string    `json:"fabricante"`
	Doses      int       `json:"doses"`
	Quantidade int       `json:"quantidade"`
	EstoqueID  string    `json:"estoqueId"`
}

func (a *API) handleStockCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req stockLineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.EstoqueID) == "" || strings.TrimSpace(req.VacinaID) == "" {
		writeError(w, r, http.StatusBadRequest, "vacinaId e estoqueId são obrigatórios")
		return
	}

	line, err := a.registry.AddStockLine(r.Context(), registry.StockLine{
		VacinaID:   req.VacinaID,
		Vacina:     req.Vacina,
		Lote:       req.Lote,
		Validade:   req.Validade,
		Fabricante: req.Fabricante,
		Doses:      req.Doses,
		Quantidade: req.Quantidade,
		EstoqueID:  req.EstoqueID,
	})
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "stock.add", map[string]any{
		"line_id":    line.ID,
		"vacina_id":  line.VacinaID,
		"quantidade": line.Quantidade,
	})
	writeResult(w, http.StatusCreated, line)
}

type discardRequest struct {
	Quantidade int `json:"quantidade"`
}

func (a *API) handleStockResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/vacina-estoque/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	segments := strings.Split(path, "/")

	switch {
	case len(segments) == 2 && r.Method == http.MethodGet:
		a.getStockLine(w, r, segments[0], segments[1])
	case len(segments) == 1 && r.Method == http.MethodDelete:
		a.discardStock(w, r, segments[0])
	case len(segments) == 2:
		methodNotAllowed(w, r, http.MethodGet)
	case len(segments) == 1:
		methodNotAllowed(w, r, http.MethodDelete)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getStockLine(w http.ResponseWriter, r *http.Request, vacinaID, estoqueID string) {
	line, err := a.registry.StockLineByVaccine(r.Context(), vacinaID, estoqueID)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, line)
}

func (a *API) discardStock(w http.ResponseWriter, r *http.Request, lineID string) {
	var req discardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	line, err := a.registry.Discard(r.Context(), lineID, req.Quantidade)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "stock.discard", map[string]any{
		"line_id":    lineID,
		"quantidade": req.Quantidade,
		"restante":   line.Quantidade,
	})
	writeResult(w, http.StatusOK, line)
}

type transferRequest struct {
	OrigemID        string `json:"origemId"`
	DestinoID       string `json:"destinoId"`
	VacinaEstoqueID string `json:"vacinaEstoqueId"`
	Quantidade      int    `json:"quantidade"`
}

func (a *API) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.VacinaEstoqueID) == "" || strings.TrimSpace(req.DestinoID) == "" {
		writeError(w, r, http.StatusBadRequest, "vacinaEstoqueId e destinoId são obrigatórios")
		return
	}

	if req.OrigemID != "" {
		line, err := a.registry.StockLine(r.Context(), req.VacinaEstoqueID)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		if line.EstoqueID != req.OrigemID {
			writeError(w, r, http.StatusBadRequest, "origemId não corresponde ao estoque do lote")
			return
		}
	}

	moved, err := a.registry.Transfer(r.Context(), req.VacinaEstoqueID, req.DestinoID, req.Quantidade)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "stock.transfer", map[string]any{
		"line_id":    req.VacinaEstoqueID,
		"destino_id": req.DestinoID,
		"quantidade": req.Quantidade,
	})
	writeResult(w, http.StatusOK, moved)
}

func (a *API) handleRoomsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rooms, err := a.registry.ListRooms(r.Context())
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeResult(w, http.StatusOK, rooms)
	case http.MethodPost:
		if !a.requireAdmin(w, r) {
			return
		}
		var room registry.Room
		if err := decodeJSON(w, r, &room); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		created, err := a.registry.CreateRoom(r.Context(), room)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "room.create", map[string]any{"sala_id": created.ID})
		writeResult(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoomResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/salas/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		room, err := a.registry.GetRoom(r.Context(), id)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeResult(w, http.StatusOK, room)
	case http.MethodPut:
		if !a.requireAdmin(w, r) {
			return
		}
		var room registry.Room
		if err := decodeJSON(w, r, &room); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		room.ID = id
		updated, err := a.registry.UpdateRoom(r.Context(), room)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "room.update", map[string]any{"sala_id": id})
		writeResult(w, http.StatusOK, updated)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleStorageUnits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	var unit registry.StorageUnit
	if err := decodeJSON(w, r, &unit); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	created, err := a.registry.CreateStorageUnit(r.Context(), unit)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "storage_unit.create", map[string]any{
		"estoque_id": created.ID,
		"sala_id":    created.SalaID,
	})
	writeResult(w, http.StatusCreated, created)
}

func (a *API) handleProfessionalsCollection(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		profs, err := a.registry.ListProfessionals(r.Context())
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		writeResult(w, http.StatusOK, profs)
	case http.MethodPost:
		var prof registry.Professional
		if err := decodeJSON(w, r, &prof); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		created, err := a.registry.CreateProfessional(r.Context(), prof)
		if err != nil {
			handleRegistryError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "professional.create", map[string]any{"profissional_id": created.ID})
		writeResult(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleProfessionalResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/profissionais/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if !principal.Admin && principal.ProfessionalID != id {
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}
	prof, err := a.registry.GetProfessional(r.Context(), id)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, prof)
}

type cleaningRequest struct {
	SalaID     string `json:"salaId"`
	Produto    string `json:"produto"`
	Observacao string `json:"observacao"`
}

func (a *API) handleCleaning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req cleaningRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.SalaID) == "" || strings.TrimSpace(req.Produto) == "" {
		writeError(w, r, http.StatusBadRequest, "salaId e produto são obrigatórios")
		return
	}

	rec, err := a.registry.RegisterCleaning(r.Context(), registry.CleaningRecord{
		SalaID:         req.SalaID,
		ProfissionalID: principal.ProfessionalID,
		Produto:        req.Produto,
		Observacao:     req.Observacao,
	})
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "cleaning.register", map[string]any{"sala_id": req.SalaID})
	writeResult(w, http.StatusCreated, rec)
}

func (a *API) handleCEP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.cep == nil {
		writeError(w, r, http.StatusServiceUnavailable, "consulta de CEP indisponível")
		return
	}
	codigo := strings.TrimPrefix(r.URL.Path, "/cep/")
	if codigo == "" || strings.Contains(codigo, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	res, err := a.cep.Lookup(r.Context(), codigo)
	if err != nil {
		handleCEPError(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, res)
}
