package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"vacenf.org/internal/ids"
)

// Service defines cold-chain registry operations.
type Service interface {
	OpenWorkDay(ctx context.Context, profissionalID, salaID string) (WorkDayBinding, error)
	RecordReadings(ctx context.Context, batch []ReadingInput) ([]TemperatureReading, error)
	ListReadings(ctx context.Context, estoqueID string, limit int) ([]TemperatureReading, error)

	StockLine(ctx context.Context, lineID string) (StockLine, error)
	StockLineByVaccine(ctx context.Context, vacinaID, estoqueID string) (StockLine, error)
	AddStockLine(ctx context.Context, line StockLine) (StockLine, error)
	Discard(ctx context.Context, lineID string, quantidade int) (StockLine, error)
	Transfer(ctx context.Context, lineID, destinoID string, quantidade int) (StockLine, error)

	ListRooms(ctx context.Context) ([]Room, error)
	GetRoom(ctx context.Context, id string) (Room, error)
	CreateRoom(ctx context.Context, room Room) (Room, error)
	UpdateRoom(ctx context.Context, room Room) (Room, error)
	GetStorageUnit(ctx context.Context, id string) (StorageUnit, error)
	CreateStorageUnit(ctx context.Context, unit StorageUnit) (StorageUnit, error)

	CreateProfessional(ctx context.Context, prof Professional) (Professional, error)
	GetProfessional(ctx context.Context, id string) (Professional, error)
	FindProfessionalByEmail(ctx context.Context, email string) (Professional, error)
	ListProfessionals(ctx context.Context) ([]Professional, error)

	RegisterCleaning(ctx context.Context, rec CleaningRecord) (CleaningRecord, error)
}

// InMemory implements Service with in-process concurrency safety. The Postgres
// store supersedes it in deployments with a DSN configured.
type InMemory struct {
	mu        sync.RWMutex
	rooms     map[string]*Room
	units     map[string]*StorageUnit
	lines     map[string]*StockLine
	profs     map[string]*Professional
	readings  []TemperatureReading
	workdays  map[string]WorkDay // (profissionalID|dia) -> binding
	cleanings []CleaningRecord
	now       func() time.Time
}

// NewInMemory creates an empty registry.
func NewInMemory() *InMemory {
	return &InMemory{
		rooms:    make(map[string]*Room),
		units:    make(map[string]*StorageUnit),
		lines:    make(map[string]*StockLine),
		profs:    make(map[string]*Professional),
		workdays: make(map[string]WorkDay),
		now:      time.Now,
	}
}

func (s *InMemory) OpenWorkDay(ctx context.Context, profissionalID, salaID string) (WorkDayBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profs[profissionalID]; !ok {
		return WorkDayBinding{}, ErrNotFound
	}
	room, ok := s.rooms[salaID]
	if !ok {
		return WorkDayBinding{}, ErrNotFound
	}

	dia := s.now().UTC().Format("2006-01-02")
	key := profissionalID + "|" + dia
	wd, ok := s.workdays[key]
	if !ok || wd.SalaID != salaID {
		// Selecting a different room on the same day replaces the binding.
		wd = WorkDay{
			ID:             ids.New(),
			ProfissionalID: profissionalID,
			SalaID:         salaID,
			Dia:            dia,
			CreatedAt:      s.now().UTC(),
		}
		s.workdays[key] = wd
	}

	return WorkDayBinding{
		Sala:        *room,
		Estoques:    s.unitsForRoomLocked(salaID),
		DiaTrabalho: wd,
	}, nil
}

func (s *InMemory) RecordReadings(ctx context.Context, batch []ReadingInput) ([]TemperatureReading, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TemperatureReading, 0, len(batch))
	for _, in := range batch {
		unit, ok := s.units[in.EstoqueID]
		if !ok {
			return nil, ErrNotFound
		}
		reading := TemperatureReading{
			ID:             ids.New(),
			EstoqueID:      in.EstoqueID,
			Temperatura:    in.Temperatura,
			ProfissionalID: in.ProfissionalID,
			RegistradoEm:   s.now().UTC(),
			ForaDaFaixa:    in.Temperatura < unit.MinTemp || in.Temperatura > unit.MaxTemp,
		}
		out = append(out, reading)
	}
	s.readings = append(s.readings, out...)
	return out, nil
}

func (s *InMemory) ListReadings(ctx context.Context, estoqueID string, limit int) ([]TemperatureReading, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.units[estoqueID]; !ok {
		return nil, ErrNotFound
	}
	var res []TemperatureReading
	for i := len(s.readings) - 1; i >= 0 && len(res) < limit; i-- {
		if s.readings[i].EstoqueID == estoqueID {
			res = append(res, s.readings[i])
		}
	}
	return res, nil
}

func (s *InMemory) StockLine(ctx context.Context, lineID string) (StockLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	line, ok := s.lines[lineID]
	if !ok {
		return StockLine{}, ErrNotFound
	}
	return *line, nil
}

func (s *InMemory) StockLineByVaccine(ctx context.Context, vacinaID, estoqueID string) (StockLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, line := range s.lines {
		if line.VacinaID == vacinaID && line.EstoqueID == estoqueID {
			return *line, nil
		}
	}
	return StockLine{}, ErrNotFound
}

func (s *InMemory) AddStockLine(ctx context.Context, line StockLine) (StockLine, error) {
	if line.Quantidade <= 0 {
		return StockLine{}, ErrInvalidQuantity
	}
	if !line.Validade.IsZero() && line.Validade.Before(s.now().UTC().Truncate(24*time.Hour)) {
		return StockLine{}, ErrExpiredLot
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.units[line.EstoqueID]; !ok {
		return StockLine{}, ErrNotFound
	}
	line.ID = ids.New()
	s.lines[line.ID] = &line
	return line, nil
}

func (s *InMemory) Discard(ctx context.Context, lineID string, quantidade int) (StockLine, error) {
	if quantidade <= 0 {
		return StockLine{}, ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[lineID]
	if !ok {
		return StockLine{}, ErrNotFound
	}
	if quantidade > line.Quantidade {
		return StockLine{}, ErrInsufficientStock
	}
	line.Quantidade -= quantidade
	return *line, nil
}

func (s *InMemory) Transfer(ctx context.Context, lineID, destinoID string, quantidade int) (StockLine, error) {
	if quantidade <= 0 {
		return StockLine{}, ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[lineID]
	if !ok {
		return StockLine{}, ErrNotFound
	}
	if _, ok := s.units[destinoID]; !ok {
		return StockLine{}, ErrNotFound
	}
	if destinoID == line.EstoqueID {
		return StockLine{}, ErrSameUnit
	}
	if quantidade > line.Quantidade {
		return StockLine{}, ErrInsufficientStock
	}

	line.Quantidade -= quantidade

	// Same vaccine lot in the destination unit absorbs the quantity.
	for _, dst := range s.lines {
		if dst.EstoqueID == destinoID && dst.VacinaID == line.VacinaID && dst.Lote == line.Lote {
			dst.Quantidade += quantidade
			return *dst, nil
		}
	}
	moved := *line
	moved.ID = ids.New()
	moved.EstoqueID = destinoID
	moved.Quantidade = quantidade
	s.lines[moved.ID] = &moved
	return moved, nil
}

func (s *InMemory) ListRooms(ctx context.Context) ([]Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		res = append(res, *room)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Numero < res[j].Numero })
	return res, nil
}

func (s *InMemory) GetRoom(ctx context.Context, id string) (Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return Room{}, ErrNotFound
	}
	return *room, nil
}

func (s *InMemory) CreateRoom(ctx context.Context, room Room) (Room, error) {
	if room.Status == "" {
		room.Status = RoomActive
	}
	if !ValidStatus(room.Status) {
		return Room{}, ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.rooms {
		if existing.Numero == room.Numero {
			return Room{}, ErrAlreadyExists
		}
	}
	room.ID = ids.New()
	s.rooms[room.ID] = &room
	return room, nil
}

func (s *InMemory) UpdateRoom(ctx context.Context, room Room) (Room, error) {
	if !ValidStatus(room.Status) {
		return Room{}, ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rooms[room.ID]
	if !ok {
		return Room{}, ErrNotFound
	}
	if room.Numero != "" {
		existing.Numero = room.Numero
	}
	if room.Rotulo != "" {
		existing.Rotulo = room.Rotulo
	}
	existing.Status = room.Status
	return *existing, nil
}

func (s *InMemory) GetStorageUnit(ctx context.Context, id string) (StorageUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unit, ok := s.units[id]
	if !ok {
		return StorageUnit{}, ErrNotFound
	}
	return *unit, nil
}

func (s *InMemory) CreateStorageUnit(ctx context.Context, unit StorageUnit) (StorageUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[unit.SalaID]; !ok {
		return StorageUnit{}, ErrNotFound
	}
	unit.ID = ids.New()
	s.units[unit.ID] = &unit
	return unit, nil
}

func (s *InMemory) CreateProfessional(ctx context.Context, prof Professional) (Professional, error) {
	prof.Email = strings.TrimSpace(strings.ToLower(prof.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.profs {
		if existing.Email == prof.Email {
			return Professional{}, ErrAlreadyExists
		}
	}
	prof.ID = ids.New()
	prof.Ativo = true
	prof.CreatedAt = s.now().UTC()
	s.profs[prof.ID] = &prof
	return prof, nil
}

func (s *InMemory) GetProfessional(ctx context.Context, id string) (Professional, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prof, ok := s.profs[id]
	if !ok {
		return Professional{}, ErrNotFound
	}
	return *prof, nil
}

func (s *InMemory) FindProfessionalByEmail(ctx context.Context, email string) (Professional, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, prof := range s.profs {
		if prof.Email == email {
			return *prof, nil
		}
	}
	return Professional{}, ErrNotFound
}

func (s *InMemory) ListProfessionals(ctx context.Context) ([]Professional, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Professional, 0, len(s.profs))
	for _, prof := range s.profs {
		res = append(res, *prof)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Nome < res[j].Nome })
	return res, nil
}

func (s *InMemory) RegisterCleaning(ctx context.Context, rec CleaningRecord) (CleaningRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[rec.SalaID]; !ok {
		return CleaningRecord{}, ErrNotFound
	}
	rec.ID = ids.New()
	rec.RegistradoEm = s.now().UTC()
	s.cleanings = append(s.cleanings, rec)
	return rec, nil
}

func (s *InMemory) unitsForRoomLocked(salaID string) []StorageUnit {
	var res []StorageUnit
	for _, unit := range s.units {
		if unit.SalaID == salaID {
			res = append(res, *unit)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Nome < res[j].Nome })
	return res
}
