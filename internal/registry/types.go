package registry

import (
	"errors"
	"time"
)

// RoomStatus is the operational state of a vaccine room.
type RoomStatus string

const (
	RoomActive      RoomStatus = "ativa"
	RoomInactive    RoomStatus = "inativa"
	RoomMaintenance RoomStatus = "manutencao"
)

// ValidStatus reports whether s is one of the known room states.
func ValidStatus(s RoomStatus) bool {
	switch s {
	case RoomActive, RoomInactive, RoomMaintenance:
		return true
	}
	return false
}

// Address is a Brazilian postal address. CEP is stored as 8 digits.
type Address struct {
	CEP         string `json:"cep"`
	Logradouro  string `json:"logradouro"`
	Numero      string `json:"numero"`
	Complemento string `json:"complemento,omitempty"`
	Bairro      string `json:"bairro"`
	Localidade  string `json:"localidade"`
	UF          string `json:"uf"`
}

// Professional is a health worker operating the cold chain.
type Professional struct {
	ID           string    `json:"id"`
	Nome         string    `json:"nome"`
	Registro     string    `json:"registro"`
	Ocupacao     string    `json:"ocupacao"`
	Email        string    `json:"email"`
	Nascimento   time.Time `json:"nascimento"`
	CPF          string    `json:"cpf"`
	Admin        bool      `json:"admin"`
	Endereco     Address   `json:"endereco"`
	UnidadeID    string    `json:"unidadeId"`
	Ativo        bool      `json:"ativo"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Room is a vaccine room holding one or more storage units.
type Room struct {
	ID     string     `json:"id"`
	Numero string     `json:"numero"`
	Rotulo string     `json:"rotulo"`
	Status RoomStatus `json:"status"`
}

// StorageUnit is a freezer or fridge inside a room, with its acceptable
// temperature band.
type StorageUnit struct {
	ID      string  `json:"id"`
	SalaID  string  `json:"salaId"`
	Nome    string  `json:"nome"`
	MinTemp float64 `json:"minTemp"`
	MaxTemp float64 `json:"maxTemp"`
}

// StockLine is a vaccine lot quantity held in a storage unit.
type StockLine struct {
	ID         string    `json:"id"`
	VacinaID   string    `json:"vacinaId"`
	Vacina     string    `json:"vacina"`
	Lote       string    `json:"lote"`
	Validade   time.Time `json:"validade"`
	Fabricante string    `json:"fabricante"`
	Doses      int       `json:"doses"`
	Quantidade int       `json:"quantidade"`
	EstoqueID  string    `json:"estoqueId"`
}

// TemperatureReading is one recorded measurement for a storage unit.
type TemperatureReading struct {
	ID             string    `json:"id"`
	EstoqueID      string    `json:"estoqueId"`
	Temperatura    float64   `json:"temperatura"`
	ProfissionalID string    `json:"profissionalId"`
	RegistradoEm   time.Time `json:"registradoEm"`
	ForaDaFaixa    bool      `json:"foraDaFaixa"`
}

// ReadingInput is the submitted form of a temperature reading.
type ReadingInput struct {
	EstoqueID      string  `json:"estoqueId"`
	Temperatura    float64 `json:"temperatura"`
	ProfissionalID string  `json:"profissionalId"`
}

// WorkDay binds a professional to a room for one day.
type WorkDay struct {
	ID             string    `json:"id"`
	ProfissionalID string    `json:"profissionalId"`
	SalaID         string    `json:"salaId"`
	Dia            string    `json:"dia"` // YYYY-MM-DD
	CreatedAt      time.Time `json:"createdAt"`
}

// WorkDayBinding is the payload returned when a professional selects a room.
type WorkDayBinding struct {
	Sala        Room          `json:"sala"`
	Estoques    []StorageUnit `json:"estoques"`
	DiaTrabalho WorkDay       `json:"diaTrabalho"`
}

// CleaningRecord registers a room cleaning.
type CleaningRecord struct {
	ID             string    `json:"id"`
	SalaID         string    `json:"salaId"`
	ProfissionalID string    `json:"profissionalId"`
	Produto        string    `json:"produto"`
	Observacao     string    `json:"observacao,omitempty"`
	RegistradoEm   time.Time `json:"registradoEm"`
}

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidQuantity   = errors.New("invalid quantity (must be > 0)")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrSameUnit          = errors.New("source and destination units must differ")
	ErrEmptyBatch        = errors.New("empty reading batch")
	ErrExpiredLot        = errors.New("lot expiry date is in the past")
	ErrInvalidStatus     = errors.New("invalid room status")
	ErrAlreadyExists     = errors.New("already exists")
)
