package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"vacenf.org/internal/ids"
	"vacenf.org/internal/registry"
)

type Store struct {
	db *sql.DB
}

var _ registry.Service = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool. Used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) OpenWorkDay(ctx context.Context, profissionalID, salaID string) (registry.WorkDayBinding, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return registry.WorkDayBinding{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from professionals where id=$1`, profissionalID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registry.WorkDayBinding{}, registry.ErrNotFound
		}
		return registry.WorkDayBinding{}, err
	}

	var room registry.Room
	err = tx.QueryRowContext(ctx, `select id, numero, rotulo, status from rooms where id=$1`, salaID).
		Scan(&room.ID, &room.Numero, &room.Rotulo, &room.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.WorkDayBinding{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.WorkDayBinding{}, err
	}

	dia := time.Now().UTC().Format("2006-01-02")
	wd := registry.WorkDay{
		ID:             ids.New(),
		ProfissionalID: profissionalID,
		SalaID:         salaID,
		Dia:            dia,
		CreatedAt:      time.Now().UTC(),
	}
	// One binding per professional per day; a new room replaces it.
	err = tx.QueryRowContext(ctx, `
		insert into work_days(id, professional_id, room_id, day, created_at)
		values ($1,$2,$3,$4,$5)
		on conflict (professional_id, day) do update set room_id = excluded.room_id
		returning id, created_at
	`, wd.ID, profissionalID, salaID, dia, wd.CreatedAt).Scan(&wd.ID, &wd.CreatedAt)
	if err != nil {
		return registry.WorkDayBinding{}, err
	}

	rows, err := tx.QueryContext(ctx, `
		select id, room_id, name, min_temp, max_temp
		from storage_units where room_id=$1 order by name
	`, salaID)
	if err != nil {
		return registry.WorkDayBinding{}, err
	}
	defer rows.Close()

	var units []registry.StorageUnit
	for rows.Next() {
		var u registry.StorageUnit
		if err := rows.Scan(&u.ID, &u.SalaID, &u.Nome, &u.MinTemp, &u.MaxTemp); err != nil {
			return registry.WorkDayBinding{}, err
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return registry.WorkDayBinding{}, err
	}
	if err := tx.Commit(); err != nil {
		return registry.WorkDayBinding{}, err
	}
	return registry.WorkDayBinding{Sala: room, Estoques: units, DiaTrabalho: wd}, nil
}

func (s *Store) RecordReadings(ctx context.Context, batch []registry.ReadingInput) ([]registry.TemperatureReading, error) {
	if len(batch) == 0 {
		return nil, registry.ErrEmptyBatch
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]registry.TemperatureReading, 0, len(batch))
	for _, in := range batch {
		var minTemp, maxTemp float64
		err := tx.QueryRowContext(ctx, `select min_temp, max_temp from storage_units where id=$1`, in.EstoqueID).
			Scan(&minTemp, &maxTemp)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		if err != nil {
			return nil, err
		}

		r := registry.TemperatureReading{
			ID:             ids.New(),
			EstoqueID:      in.EstoqueID,
			Temperatura:    in.Temperatura,
			ProfissionalID: in.ProfissionalID,
			RegistradoEm:   time.Now().UTC(),
			ForaDaFaixa:    in.Temperatura < minTemp || in.Temperatura > maxTemp,
		}
		if _, err := tx.ExecContext(ctx, `
			insert into temperature_readings(id, storage_unit_id, temperature, professional_id, recorded_at, out_of_range)
			values ($1,$2,$3,$4,$5,$6)
		`, r.ID, r.EstoqueID, r.Temperatura, r.ProfissionalID, r.RegistradoEm, r.ForaDaFaixa); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListReadings(ctx context.Context, estoqueID string, limit int) ([]registry.TemperatureReading, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var exists int
	if err := s.db.QueryRowContext(ctx, `select 1 from storage_units where id=$1`, estoqueID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select id, storage_unit_id, temperature, professional_id, recorded_at, out_of_range
		from temperature_readings
		where storage_unit_id=$1
		order by recorded_at desc
		limit $2
	`, estoqueID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []registry.TemperatureReading
	for rows.Next() {
		var r registry.TemperatureReading
		if err := rows.Scan(&r.ID, &r.EstoqueID, &r.Temperatura, &r.ProfissionalID, &r.RegistradoEm, &r.ForaDaFaixa); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *Store) StockLine(ctx context.Context, lineID string) (registry.StockLine, error) {
	var line registry.StockLine
	err := s.db.QueryRowContext(ctx, `
		select id, vaccine_id, vaccine, lot, expiry, manufacturer, doses, quantity, storage_unit_id
		from stock_lines where id=$1
	`, lineID).Scan(
		&line.ID, &line.VacinaID, &line.Vacina, &line.Lote, &line.Validade,
		&line.Fabricante, &line.Doses, &line.Quantidade, &line.EstoqueID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.StockLine{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.StockLine{}, err
	}
	return line, nil
}

func (s *Store) StockLineByVaccine(ctx context.Context, vacinaID, estoqueID string) (registry.StockLine, error) {
	var line registry.StockLine
	err := s.db.QueryRowContext(ctx, `
		select id, vaccine_id, vaccine, lot, expiry, manufacturer, doses, quantity, storage_unit_id
		from stock_lines
		where vaccine_id=$1 and storage_unit_id=$2
	`, vacinaID, estoqueID).Scan(
		&line.ID, &line.VacinaID, &line.Vacina, &line.Lote, &line.Validade,
		&line.Fabricante, &line.Doses, &line.Quantidade, &line.EstoqueID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.StockLine{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.StockLine{}, err
	}
	return line, nil
}

func (s *Store) AddStockLine(ctx context.Context, line registry.StockLine) (registry.StockLine, error) {
	if line.Quantidade <= 0 {
		return registry.StockLine{}, registry.ErrInvalidQuantity
	}
	if !line.Validade.IsZero() && line.Validade.Before(time.Now().UTC().Truncate(24*time.Hour)) {
		return registry.StockLine{}, registry.ErrExpiredLot
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `select 1 from storage_units where id=$1`, line.EstoqueID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registry.StockLine{}, registry.ErrNotFound
		}
		return registry.StockLine{}, err
	}

	line.ID = ids.New()
	_, err := s.db.ExecContext(ctx, `
		insert into stock_lines(id, vaccine_id, vaccine, lot, expiry, manufacturer, doses, quantity, storage_unit_id)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, line.ID, line.VacinaID, line.Vacina, line.Lote, line.Validade, line.Fabricante, line.Doses, line.Quantidade, line.EstoqueID)
	if err != nil {
		return registry.StockLine{}, err
	}
	return line, nil
}

func (s *Store) Discard(ctx context.Context, lineID string, quantidade int) (registry.StockLine, error) {
	if quantidade <= 0 {
		return registry.StockLine{}, registry.ErrInvalidQuantity
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return registry.StockLine{}, err
	}
	defer func() { _ = tx.Rollback() }()

	line, err := lockLine(ctx, tx, lineID)
	if err != nil {
		return registry.StockLine{}, err
	}
	if quantidade > line.Quantidade {
		return registry.StockLine{}, registry.ErrInsufficientStock
	}

	line.Quantidade -= quantidade
	if _, err := tx.ExecContext(ctx, `
		update stock_lines set quantity = quantity - $2 where id=$1
	`, lineID, quantidade); err != nil {
		return registry.StockLine{}, err
	}
	if err := tx.Commit(); err != nil {
		return registry.StockLine{}, err
	}
	return line, nil
}

func (s *Store) Transfer(ctx context.Context, lineID, destinoID string, quantidade int) (registry.StockLine, error) {
	if quantidade <= 0 {
		return registry.StockLine{}, registry.ErrInvalidQuantity
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return registry.StockLine{}, err
	}
	defer func() { _ = tx.Rollback() }()

	line, err := lockLine(ctx, tx, lineID)
	if err != nil {
		return registry.StockLine{}, err
	}
	if destinoID == line.EstoqueID {
		return registry.StockLine{}, registry.ErrSameUnit
	}
	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from storage_units where id=$1`, destinoID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registry.StockLine{}, registry.ErrNotFound
		}
		return registry.StockLine{}, err
	}
	if quantidade > line.Quantidade {
		return registry.StockLine{}, registry.ErrInsufficientStock
	}

	if _, err := tx.ExecContext(ctx, `
		update stock_lines set quantity = quantity - $2 where id=$1
	`, lineID, quantidade); err != nil {
		return registry.StockLine{}, err
	}

	// Same vaccine lot in the destination unit absorbs the quantity.
	var dst registry.StockLine
	err = tx.QueryRowContext(ctx, `
		select id, vaccine_id, vaccine, lot, expiry, manufacturer, doses, quantity, storage_unit_id
		from stock_lines
		where storage_unit_id=$1 and vaccine_id=$2 and lot=$3
		for update
	`, destinoID, line.VacinaID, line.Lote).Scan(
		&dst.ID, &dst.VacinaID, &dst.Vacina, &dst.Lote, &dst.Validade,
		&dst.Fabricante, &dst.Doses, &dst.Quantidade, &dst.EstoqueID,
	)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `
			update stock_lines set quantity = quantity + $2 where id=$1
		`, dst.ID, quantidade); err != nil {
			return registry.StockLine{}, err
		}
		dst.Quantidade += quantidade
	case errors.Is(err, sql.ErrNoRows):
		dst = line
		dst.ID = ids.New()
		dst.EstoqueID = destinoID
		dst.Quantidade = quantidade
		if _, err := tx.ExecContext(ctx, `
			insert into stock_lines(id, vaccine_id, vaccine, lot, expiry, manufacturer, doses, quantity, storage_unit_id)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, dst.ID, dst.VacinaID, dst.Vacina, dst.Lote, dst.Validade, dst.Fabricante, dst.Doses, dst.Quantidade, dst.EstoqueID); err != nil {
			return registry.StockLine{}, err
		}
	default:
		return registry.StockLine{}, err
	}

	if err := tx.Commit(); err != nil {
		return registry.StockLine{}, err
	}
	return dst, nil
}

func (s *Store) ListRooms(ctx context.Context) ([]registry.Room, error) {
	rows, err := s.db.QueryContext(ctx, `select id, numero, rotulo, status from rooms order by numero`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []registry.Room{}
	for rows.Next() {
		var r registry.Room
		if err := rows.Scan(&r.ID, &r.Numero, &r.Rotulo, &r.Status); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *Store) GetRoom(ctx context.Context, id string) (registry.Room, error) {
	var room registry.Room
	err := s.db.QueryRowContext(ctx, `select id, numero, rotulo, status from rooms where id=$1`, id).
		Scan(&room.ID, &room.Numero, &room.Rotulo, &room.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Room{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Room{}, err
	}
	return room, nil
}

func (s *Store) CreateRoom(ctx context.Context, room registry.Room) (registry.Room, error) {
	if room.Status == "" {
		room.Status = registry.RoomActive
	}
	if !registry.ValidStatus(room.Status) {
		return registry.Room{}, registry.ErrInvalidStatus
	}
	room.ID = ids.New()
	_, err := s.db.ExecContext(ctx, `
		insert into rooms(id, numero, rotulo, status) values ($1,$2,$3,$4)
	`, room.ID, room.Numero, room.Rotulo, room.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return registry.Room{}, registry.ErrAlreadyExists
		}
		return registry.Room{}, err
	}
	return room, nil
}

func (s *Store) UpdateRoom(ctx context.Context, room registry.Room) (registry.Room, error) {
	if !registry.ValidStatus(room.Status) {
		return registry.Room{}, registry.ErrInvalidStatus
	}
	var out registry.Room
	err := s.db.QueryRowContext(ctx, `
		update rooms set
			numero = coalesce(nullif($2,''), numero),
			rotulo = coalesce(nullif($3,''), rotulo),
			status = $4
		where id=$1
		returning id, numero, rotulo, status
	`, room.ID, room.Numero, room.Rotulo, room.Status).
		Scan(&out.ID, &out.Numero, &out.Rotulo, &out.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Room{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Room{}, err
	}
	return out, nil
}

func (s *Store) GetStorageUnit(ctx context.Context, id string) (registry.StorageUnit, error) {
	var unit registry.StorageUnit
	err := s.db.QueryRowContext(ctx, `
		select id, room_id, name, min_temp, max_temp from storage_units where id=$1
	`, id).Scan(&unit.ID, &unit.SalaID, &unit.Nome, &unit.MinTemp, &unit.MaxTemp)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.StorageUnit{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.StorageUnit{}, err
	}
	return unit, nil
}

func (s *Store) CreateStorageUnit(ctx context.Context, unit registry.StorageUnit) (registry.StorageUnit, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `select 1 from rooms where id=$1`, unit.SalaID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registry.StorageUnit{}, registry.ErrNotFound
		}
		return registry.StorageUnit{}, err
	}
	unit.ID = ids.New()
	_, err := s.db.ExecContext(ctx, `
		insert into storage_units(id, room_id, name, min_temp, max_temp)
		values ($1,$2,$3,$4,$5)
	`, unit.ID, unit.SalaID, unit.Nome, unit.MinTemp, unit.MaxTemp)
	if err != nil {
		return registry.StorageUnit{}, err
	}
	return unit, nil
}

func (s *Store) CreateProfessional(ctx context.Context, prof registry.Professional) (registry.Professional, error) {
	prof.Email = strings.TrimSpace(strings.ToLower(prof.Email))
	prof.ID = ids.New()
	prof.Ativo = true
	prof.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		insert into professionals(
			id, name, license, occupation, email, birth_date, cpf, admin,
			cep, street, number, extra, district, city, state,
			unit_id, active, password_hash, created_at
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, prof.ID, prof.Nome, prof.Registro, prof.Ocupacao, prof.Email, prof.Nascimento, prof.CPF, prof.Admin,
		prof.Endereco.CEP, prof.Endereco.Logradouro, prof.Endereco.Numero, prof.Endereco.Complemento,
		prof.Endereco.Bairro, prof.Endereco.Localidade, prof.Endereco.UF,
		prof.UnidadeID, prof.Ativo, prof.PasswordHash, prof.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return registry.Professional{}, registry.ErrAlreadyExists
		}
		return registry.Professional{}, err
	}
	return prof, nil
}

func (s *Store) GetProfessional(ctx context.Context, id string) (registry.Professional, error) {
	return s.professionalBy(ctx, `where id=$1`, id)
}

func (s *Store) FindProfessionalByEmail(ctx context.Context, email string) (registry.Professional, error) {
	return s.professionalBy(ctx, `where email=$1`, strings.TrimSpace(strings.ToLower(email)))
}

func (s *Store) ListProfessionals(ctx context.Context) ([]registry.Professional, error) {
	rows, err := s.db.QueryContext(ctx, professionalSelect+` order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []registry.Professional
	for rows.Next() {
		prof, err := scanProfessional(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, prof)
	}
	return res, rows.Err()
}

func (s *Store) RegisterCleaning(ctx context.Context, rec registry.CleaningRecord) (registry.CleaningRecord, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `select 1 from rooms where id=$1`, rec.SalaID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registry.CleaningRecord{}, registry.ErrNotFound
		}
		return registry.CleaningRecord{}, err
	}
	rec.ID = ids.New()
	rec.RegistradoEm = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		insert into cleaning_records(id, room_id, professional_id, product, note, recorded_at)
		values ($1,$2,$3,$4,$5,$6)
	`, rec.ID, rec.SalaID, rec.ProfissionalID, rec.Produto, rec.Observacao, rec.RegistradoEm)
	if err != nil {
		return registry.CleaningRecord{}, err
	}
	return rec, nil
}

// --- helpers ---

const professionalSelect = `
	select id, name, license, occupation, email, birth_date, cpf, admin,
	       cep, street, number, extra, district, city, state,
	       unit_id, active, password_hash, created_at
	from professionals
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfessional(row rowScanner) (registry.Professional, error) {
	var p registry.Professional
	err := row.Scan(
		&p.ID, &p.Nome, &p.Registro, &p.Ocupacao, &p.Email, &p.Nascimento, &p.CPF, &p.Admin,
		&p.Endereco.CEP, &p.Endereco.Logradouro, &p.Endereco.Numero, &p.Endereco.Complemento,
		&p.Endereco.Bairro, &p.Endereco.Localidade, &p.Endereco.UF,
		&p.UnidadeID, &p.Ativo, &p.PasswordHash, &p.CreatedAt,
	)
	return p, err
}

func (s *Store) professionalBy(ctx context.Context, where string, arg any) (registry.Professional, error) {
	prof, err := scanProfessional(s.db.QueryRowContext(ctx, professionalSelect+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Professional{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Professional{}, err
	}
	return prof, nil
}

func lockLine(ctx context.Context, tx *sql.Tx, lineID string) (registry.StockLine, error) {
	var line registry.StockLine
	err := tx.QueryRowContext(ctx, `
		select id, vaccine_id, vaccine, lot, expiry, manufacturer, doses, quantity, storage_unit_id
		from stock_lines where id=$1 for update
	`, lineID).Scan(
		&line.ID, &line.VacinaID, &line.Vacina, &line.Lote, &line.Validade,
		&line.Fabricante, &line.Doses, &line.Quantidade, &line.EstoqueID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.StockLine{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.StockLine{}, err
	}
	return line, nil
}

const pgErrUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}
