package registry

import (
	"context"
	"sync"
	"testing"
	"time"
)

func seeded(t *testing.T) (*InMemory, Professional, Room, StorageUnit, StorageUnit, StockLine) {
	t.Helper()
	s := NewInMemory()
	ctx := context.Background()

	prof, err := s.CreateProfessional(ctx, Professional{Nome: "Ana", Email: "ana@vacenf.org", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("CreateProfessional: %v", err)
	}
	room, err := s.CreateRoom(ctx, Room{Numero: "101", Rotulo: "Estoque A"})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	freezer, err := s.CreateStorageUnit(ctx, StorageUnit{SalaID: room.ID, Nome: "Freezer", MinTemp: -25, MaxTemp: -15})
	if err != nil {
		t.Fatalf("CreateStorageUnit: %v", err)
	}
	fridge, err := s.CreateStorageUnit(ctx, StorageUnit{SalaID: room.ID, Nome: "Geladeira", MinTemp: 2, MaxTemp: 8})
	if err != nil {
		t.Fatalf("CreateStorageUnit: %v", err)
	}
	line, err := s.AddStockLine(ctx, StockLine{
		VacinaID: "covid19", Vacina: "CoronaVac", Lote: "L1",
		Validade: time.Now().UTC().AddDate(1, 0, 0), Quantidade: 100, EstoqueID: freezer.ID,
	})
	if err != nil {
		t.Fatalf("AddStockLine: %v", err)
	}
	return s, prof, room, freezer, fridge, line
}

func TestOpenWorkDayIdempotentPerDay(t *testing.T) {
	s, prof, room, _, _, _ := seeded(t)
	ctx := context.Background()

	first, err := s.OpenWorkDay(ctx, prof.ID, room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Estoques) != 2 {
		t.Fatalf("expected 2 storage units, got %d", len(first.Estoques))
	}
	second, err := s.OpenWorkDay(ctx, prof.ID, room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.DiaTrabalho.ID != second.DiaTrabalho.ID {
		t.Fatalf("same-day rebinding created a new work day")
	}
}

func TestOpenWorkDayUnknownRoom(t *testing.T) {
	s, prof, _, _, _, _ := seeded(t)
	if _, err := s.OpenWorkDay(context.Background(), prof.ID, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenWorkDayEmptyRoom(t *testing.T) {
	s, prof, _, _, _, _ := seeded(t)
	ctx := context.Background()
	empty, err := s.CreateRoom(ctx, Room{Numero: "12", Rotulo: "Vazia"})
	if err != nil {
		t.Fatal(err)
	}
	binding, err := s.OpenWorkDay(ctx, prof.ID, empty.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(binding.Estoques) != 0 {
		t.Fatalf("expected no storage units, got %d", len(binding.Estoques))
	}
}

func TestRecordReadingsFlagsOutOfRange(t *testing.T) {
	s, prof, _, freezer, fridge, _ := seeded(t)
	ctx := context.Background()

	out, err := s.RecordReadings(ctx, []ReadingInput{
		{EstoqueID: freezer.ID, Temperatura: -18, ProfissionalID: prof.ID},
		{EstoqueID: fridge.ID, Temperatura: 12.5, ProfissionalID: prof.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out[0].ForaDaFaixa {
		t.Fatalf("-18 is inside the freezer band, flagged out of range")
	}
	if !out[1].ForaDaFaixa {
		t.Fatalf("12.5 is outside the fridge band, not flagged")
	}

	history, err := s.ListReadings(ctx, fridge.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Temperatura != 12.5 {
		t.Fatalf("unexpected reading history: %+v", history)
	}
}

func TestRecordReadingsRejectsEmptyBatch(t *testing.T) {
	s, _, _, _, _, _ := seeded(t)
	if _, err := s.RecordReadings(context.Background(), nil); err != ErrEmptyBatch {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestRecordReadingsUnknownUnit(t *testing.T) {
	s, prof, _, _, _, _ := seeded(t)
	_, err := s.RecordReadings(context.Background(), []ReadingInput{
		{EstoqueID: "missing", Temperatura: 4, ProfissionalID: prof.ID},
	})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDiscardBounds(t *testing.T) {
	s, _, _, _, _, line := seeded(t)
	ctx := context.Background()

	if _, err := s.Discard(ctx, line.ID, 0); err != ErrInvalidQuantity {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := s.Discard(ctx, line.ID, 101); err != ErrInsufficientStock {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	updated, err := s.Discard(ctx, line.ID, 30)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Quantidade != 70 {
		t.Fatalf("unexpected quantity after discard: %d", updated.Quantidade)
	}
}

func TestTransferRequiresDistinctUnits(t *testing.T) {
	s, _, _, freezer, _, line := seeded(t)
	if _, err := s.Transfer(context.Background(), line.ID, freezer.ID, 10); err != ErrSameUnit {
		t.Fatalf("expected ErrSameUnit, got %v", err)
	}
}

func TestTransferMovesQuantity(t *testing.T) {
	s, _, _, freezer, fridge, line := seeded(t)
	ctx := context.Background()

	moved, err := s.Transfer(ctx, line.ID, fridge.ID, 40)
	if err != nil {
		t.Fatal(err)
	}
	if moved.EstoqueID != fridge.ID || moved.Quantidade != 40 {
		t.Fatalf("unexpected moved line: %+v", moved)
	}
	src, err := s.StockLineByVaccine(ctx, "covid19", freezer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if src.Quantidade != 60 {
		t.Fatalf("unexpected source quantity: %d", src.Quantidade)
	}

	// A second transfer of the same lot merges into the destination line.
	again, err := s.Transfer(ctx, line.ID, fridge.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != moved.ID || again.Quantidade != 50 {
		t.Fatalf("expected merge into existing destination line: %+v", again)
	}
}

func TestTransferInsufficientStock(t *testing.T) {
	s, _, _, _, fridge, line := seeded(t)
	if _, err := s.Transfer(context.Background(), line.ID, fridge.ID, 500); err != ErrInsufficientStock {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestAddStockLineRejectsPastExpiry(t *testing.T) {
	s, _, _, freezer, _, _ := seeded(t)
	_, err := s.AddStockLine(context.Background(), StockLine{
		VacinaID: "hepb", Vacina: "Hepatite B", Lote: "L9",
		Validade: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), Quantidade: 10, EstoqueID: freezer.ID,
	})
	if err != ErrExpiredLot {
		t.Fatalf("expected ErrExpiredLot, got %v", err)
	}
}

func TestRoomStatusValidation(t *testing.T) {
	s, _, room, _, _, _ := seeded(t)
	ctx := context.Background()

	if _, err := s.UpdateRoom(ctx, Room{ID: room.ID, Status: "quebrada"}); err != ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	updated, err := s.UpdateRoom(ctx, Room{ID: room.ID, Status: RoomMaintenance})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != RoomMaintenance {
		t.Fatalf("status not updated: %+v", updated)
	}
	if updated.Numero != "101" {
		t.Fatalf("empty fields must not overwrite: %+v", updated)
	}
}

func TestDuplicateRoomAndEmail(t *testing.T) {
	s, _, _, _, _, _ := seeded(t)
	ctx := context.Background()

	if _, err := s.CreateRoom(ctx, Room{Numero: "101"}); err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists for duplicate room, got %v", err)
	}
	if _, err := s.CreateProfessional(ctx, Professional{Nome: "Outra", Email: "ANA@vacenf.org"}); err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists for duplicate email, got %v", err)
	}
}

func TestRegisterCleaning(t *testing.T) {
	s, prof, room, _, _, _ := seeded(t)
	rec, err := s.RegisterCleaning(context.Background(), CleaningRecord{
		SalaID: room.ID, ProfissionalID: prof.ID, Produto: "Hipoclorito 1%",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID == "" || rec.RegistradoEm.IsZero() {
		t.Fatalf("cleaning record not stamped: %+v", rec)
	}
	if _, err := s.RegisterCleaning(context.Background(), CleaningRecord{SalaID: "missing"}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentDiscards(t *testing.T) {
	s, _, _, _, _, line := seeded(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Discard(ctx, line.ID, 10)
		}()
	}
	wg.Wait()

	got, err := s.StockLineByVaccine(ctx, line.VacinaID, line.EstoqueID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Quantidade != 0 {
		t.Fatalf("expected stock drained to exactly 0, got %d", got.Quantidade)
	}
}
