package pg

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"vacenf.org/internal/registry"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func lineRows(qty int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "vaccine_id", "vaccine", "lot", "expiry", "manufacturer", "doses", "quantity", "storage_unit_id",
	}).AddRow("l1", "v1", "CoronaVac", "L-001", time.Now().Add(180*24*time.Hour), "Butantan", 2, qty, "u1")
}

func TestDiscardDecrementsWithinTransaction(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("from stock_lines where id=.* for update").
		WithArgs("l1").WillReturnRows(lineRows(100))
	mock.ExpectExec("update stock_lines set quantity = quantity -").
		WithArgs("l1", 30).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	line, err := s.Discard(context.Background(), "l1", 30)
	if err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if line.Quantidade != 70 {
		t.Fatalf("expected 70 remaining, got %d", line.Quantidade)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDiscardOverAvailableRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("from stock_lines where id=.* for update").
		WithArgs("l1").WillReturnRows(lineRows(20))
	mock.ExpectRollback()

	if _, err := s.Discard(context.Background(), "l1", 21); err != registry.ErrInsufficientStock {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDiscardRejectsNonPositiveQuantity(t *testing.T) {
	s, _ := newMockStore(t)
	if _, err := s.Discard(context.Background(), "l1", 0); err != registry.ErrInvalidQuantity {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestTransferMergesIntoExistingDestinationLot(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("from stock_lines where id=.* for update").
		WithArgs("l1").WillReturnRows(lineRows(100))
	mock.ExpectQuery("select 1 from storage_units").
		WithArgs("u2").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("update stock_lines set quantity = quantity -").
		WithArgs("l1", 40).WillReturnResult(sqlmock.NewResult(0, 1))
	destRows := sqlmock.NewRows([]string{
		"id", "vaccine_id", "vaccine", "lot", "expiry", "manufacturer", "doses", "quantity", "storage_unit_id",
	}).AddRow("l2", "v1", "CoronaVac", "L-001", time.Now().Add(180*24*time.Hour), "Butantan", 2, 10, "u2")
	mock.ExpectQuery("where storage_unit_id=.* and vaccine_id=.* and lot=").
		WithArgs("u2", "v1", "L-001").WillReturnRows(destRows)
	mock.ExpectExec(`update stock_lines set quantity = quantity \+`).
		WithArgs("l2", 40).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	dst, err := s.Transfer(context.Background(), "l1", "u2", 40)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if dst.ID != "l2" || dst.Quantidade != 50 {
		t.Fatalf("unexpected destination line: %+v", dst)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTransferCreatesDestinationLot(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("from stock_lines where id=.* for update").
		WithArgs("l1").WillReturnRows(lineRows(100))
	mock.ExpectQuery("select 1 from storage_units").
		WithArgs("u2").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("update stock_lines set quantity = quantity -").
		WithArgs("l1", 40).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("where storage_unit_id=.* and vaccine_id=.* and lot=").
		WithArgs("u2", "v1", "L-001").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("insert into stock_lines").
		WithArgs(sqlmock.AnyArg(), "v1", "CoronaVac", "L-001", sqlmock.AnyArg(), "Butantan", 2, 40, "u2").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	dst, err := s.Transfer(context.Background(), "l1", "u2", 40)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if dst.EstoqueID != "u2" || dst.Quantidade != 40 {
		t.Fatalf("unexpected destination line: %+v", dst)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTransferRejectsSameUnit(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("from stock_lines where id=.* for update").
		WithArgs("l1").WillReturnRows(lineRows(100))
	mock.ExpectRollback()

	if _, err := s.Transfer(context.Background(), "l1", "u1", 10); err != registry.ErrSameUnit {
		t.Fatalf("expected ErrSameUnit, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestStockLineByVaccineNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("where vaccine_id=.* and storage_unit_id=").
		WithArgs("v9", "u1").WillReturnError(sql.ErrNoRows)

	if _, err := s.StockLineByVaccine(context.Background(), "v9", "u1"); err != registry.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordReadingsFlagsOutOfRange(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select min_temp, max_temp from storage_units").
		WithArgs("u1").WillReturnRows(sqlmock.NewRows([]string{"min_temp", "max_temp"}).AddRow(2.0, 8.0))
	mock.ExpectExec("insert into temperature_readings").
		WithArgs(sqlmock.AnyArg(), "u1", 12.5, "p1", sqlmock.AnyArg(), true).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	out, err := s.RecordReadings(context.Background(), []registry.ReadingInput{
		{EstoqueID: "u1", Temperatura: 12.5, ProfissionalID: "p1"},
	})
	if err != nil {
		t.Fatalf("RecordReadings: %v", err)
	}
	if len(out) != 1 || !out[0].ForaDaFaixa {
		t.Fatalf("reading not flagged: %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRecordReadingsEmptyBatch(t *testing.T) {
	s, _ := newMockStore(t)
	if _, err := s.RecordReadings(context.Background(), nil); err != registry.ErrEmptyBatch {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}
