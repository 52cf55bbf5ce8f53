package registry

import (
	"context"
	"time"

	"vacenf.org/internal/auth"
)

// DemoCredentials are the login of the professional created by SeedDemo.
const (
	DemoEmail    = "enfermeira@vacenf.org"
	DemoPassword = "vacenf-demo"
)

// SeedDemo populates the in-memory registry with a small working dataset so
// the API is usable without a database.
func SeedDemo(ctx context.Context, s Service) error {
	hash, err := auth.HashPassword(DemoPassword)
	if err != nil {
		return err
	}
	_, err = s.CreateProfessional(ctx, Professional{
		Nome:       "Maria da Silva",
		Registro:   "COREN-123456",
		Ocupacao:   "Enfermeira",
		Email:      DemoEmail,
		Nascimento: time.Date(1988, 4, 12, 0, 0, 0, 0, time.UTC),
		CPF:        "12345678909",
		Admin:      true,
		Endereco: Address{
			CEP:        "01310100",
			Logradouro: "Avenida Paulista",
			Numero:     "1578",
			Bairro:     "Bela Vista",
			Localidade: "São Paulo",
			UF:         "SP",
		},
		UnidadeID:    "ubs-central",
		PasswordHash: hash,
	})
	if err != nil {
		return err
	}

	sala101, err := s.CreateRoom(ctx, Room{Numero: "101", Rotulo: "Estoque A", Status: RoomActive})
	if err != nil {
		return err
	}
	sala102, err := s.CreateRoom(ctx, Room{Numero: "102", Rotulo: "Estoque B", Status: RoomActive})
	if err != nil {
		return err
	}
	if _, err := s.CreateRoom(ctx, Room{Numero: "103", Rotulo: "Reserva", Status: RoomMaintenance}); err != nil {
		return err
	}

	freezer, err := s.CreateStorageUnit(ctx, StorageUnit{SalaID: sala101.ID, Nome: "Freezer 01", MinTemp: -25, MaxTemp: -15})
	if err != nil {
		return err
	}
	fridge, err := s.CreateStorageUnit(ctx, StorageUnit{SalaID: sala101.ID, Nome: "Geladeira 01", MinTemp: 2, MaxTemp: 8})
	if err != nil {
		return err
	}
	if _, err := s.CreateStorageUnit(ctx, StorageUnit{SalaID: sala102.ID, Nome: "Geladeira 02", MinTemp: 2, MaxTemp: 8}); err != nil {
		return err
	}

	nextYear := time.Now().UTC().AddDate(1, 0, 0)
	if _, err := s.AddStockLine(ctx, StockLine{
		VacinaID: "covid19", Vacina: "CoronaVac", Lote: "L2026-01",
		Validade: nextYear, Fabricante: "Butantan", Doses: 2, Quantidade: 120,
		EstoqueID: freezer.ID,
	}); err != nil {
		return err
	}
	if _, err := s.AddStockLine(ctx, StockLine{
		VacinaID: "influenza", Vacina: "Influenza Trivalente", Lote: "L2026-07",
		Validade: nextYear, Fabricante: "Fiocruz", Doses: 1, Quantidade: 80,
		EstoqueID: fridge.ID,
	}); err != nil {
		return err
	}
	return nil
}
