package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ParcialStore persists sipsa_parcial rows with insert-if-absent semantics on
// the key_hash column (SHA-256 over the business fields, see DedupHash).
type ParcialStore struct {
	conn *Connection
}

// NewParcialStore creates the municipal market store.
func NewParcialStore(conn *Connection) (*ParcialStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &ParcialStore{conn: conn}, nil
}

// Flush applies one batch using the shared upsert algorithm keyed on key_hash.
func (s *ParcialStore) Flush(ctx context.Context, batch []*Parcial) (UpsertMetrics, error) {
	var metrics UpsertMetrics

	if len(batch) == 0 {
		return metrics, nil
	}

	unique := make(map[string]*Parcial, len(batch))
	order := make([]string, 0, len(batch))

	for _, item := range batch {
		if _, seen := unique[item.KeyHash]; !seen {
			order = append(order, item.KeyHash)
		}

		unique[item.KeyHash] = item
	}

	metrics.Skipped = len(batch) - len(order)

	existing, err := s.probeExisting(ctx, order)
	if err != nil {
		return metrics, err
	}

	now := time.Now().UTC()
	toInsert := make([]*Parcial, 0, len(order))

	for _, hash := range order {
		if existing[hash] {
			metrics.Skipped++

			continue
		}

		item := unique[hash]
		item.LastUpdated = now
		toInsert = append(toInsert, item)
	}

	inserted, err := s.bulkInsert(ctx, toInsert)
	if err != nil {
		return metrics, err
	}

	metrics.Inserted = inserted
	metrics.Skipped += len(toInsert) - inserted

	return metrics, nil
}

func (s *ParcialStore) probeExisting(ctx context.Context, hashes []string) (map[string]bool, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT key_hash FROM sipsa_parcial WHERE key_hash = ANY($1::text[])
	`, pq.Array(hashes))
	if err != nil {
		return nil, fmt.Errorf("failed to probe existing parcial hashes: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	existing := make(map[string]bool)

	for rows.Next() {
		var hash string

		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("failed to scan parcial hash: %w", err)
		}

		existing[hash] = true
	}

	return existing, rows.Err()
}

func (s *ParcialStore) bulkInsert(ctx context.Context, items []*Parcial) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	const cols = 16

	args := make([]any, 0, len(items)*cols)
	for _, item := range items {
		args = append(args,
			item.KeyHash, item.MuniID, item.MuniNombre, item.DeptNombre,
			item.FuenID, item.FuenNombre, item.FutiID, item.IDArtiSemana,
			item.ArtiNombre, item.GrupNombre, item.EnmaFecha,
			item.PromedioKg, item.MaximoKg, item.MinimoKg,
			item.LastUpdated, item.IngestionRunID,
		)
	}

	result, err := s.conn.ExecContext(ctx, `
		INSERT INTO sipsa_parcial
			(key_hash, muni_id, muni_nombre, dept_nombre, fuen_id, fuen_nombre, futi_id,
			 id_arti_semana, arti_nombre, grup_nombre, enma_fecha, promedio_kg, maximo_kg,
			 minimo_kg, last_updated, ingestion_run_id)
		VALUES `+valuesPlaceholders(len(items), cols)+`
		ON CONFLICT (key_hash) DO NOTHING
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %d parcial rows: %w", len(items), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read parcial insert count: %w", err)
	}

	return int(affected), nil
}

// ParcialFilter holds the optional read-side filters for municipal records.
type ParcialFilter struct {
	EnmaFecha    DateWindow
	MuniID       *string
	FuenID       *int64
	IDArtiSemana *int64
}

// List returns a page of municipal market rows plus the total match count.
func (s *ParcialStore) List(ctx context.Context, filter ParcialFilter, limit, offset int) ([]Parcial, int64, error) {
	builder := &whereBuilder{}
	builder.addWindow("enma_fecha", filter.EnmaFecha)

	if filter.MuniID != nil {
		builder.add("muni_id = $%d", *filter.MuniID)
	}

	builder.addInt64("fuen_id", filter.FuenID)
	builder.addInt64("id_arti_semana", filter.IDArtiSemana)

	where := builder.clause()

	var total int64

	countArgs := append([]any(nil), builder.args...)
	if err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sipsa_parcial"+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count parcial rows: %w", err)
	}

	query := `
		SELECT id, key_hash, muni_id, muni_nombre, dept_nombre, fuen_id, fuen_nombre,
		       futi_id, id_arti_semana, arti_nombre, grup_nombre, enma_fecha,
		       promedio_kg, maximo_kg, minimo_kg, last_updated, ingestion_run_id
		FROM sipsa_parcial` + where + " ORDER BY enma_fecha DESC, id" + builder.paging(limit, offset)

	rows, err := s.conn.QueryContext(ctx, query, builder.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list parcial rows: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var items []Parcial

	for rows.Next() {
		var item Parcial

		if err := rows.Scan(
			&item.ID, &item.KeyHash, &item.MuniID, &item.MuniNombre, &item.DeptNombre,
			&item.FuenID, &item.FuenNombre, &item.FutiID, &item.IDArtiSemana,
			&item.ArtiNombre, &item.GrupNombre, &item.EnmaFecha, &item.PromedioKg,
			&item.MaximoKg, &item.MinimoKg, &item.LastUpdated, &item.IngestionRunID,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan parcial row: %w", err)
		}

		items = append(items, item)
	}

	return items, total, rows.Err()
}
