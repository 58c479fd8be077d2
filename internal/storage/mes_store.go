package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// MesStore persists sipsa_mayoristas_mensual rows with dual dedup strategies:
// tmp_mayo_mes_id when present, (arti_id, fuen_id, fecha_mes_ini) otherwise.
type MesStore struct {
	conn *Connection
}

// NewMesStore creates the monthly wholesale store.
func NewMesStore(conn *Connection) (*MesStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &MesStore{conn: conn}, nil
}

// FlushTmp applies a batch of records keyed by tmp_mayo_mes_id; the first
// occurrence of a tmp id wins within the batch.
func (s *MesStore) FlushTmp(ctx context.Context, batch []*MayoristasMensual) (UpsertMetrics, error) {
	var metrics UpsertMetrics

	if len(batch) == 0 {
		return metrics, nil
	}

	unique := make(map[int64]*MayoristasMensual, len(batch))
	order := make([]int64, 0, len(batch))

	for _, item := range batch {
		id := *item.TmpMayoMesID
		if _, seen := unique[id]; seen {
			metrics.Skipped++

			continue
		}

		unique[id] = item
		order = append(order, id)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT tmp_mayo_mes_id FROM sipsa_mayoristas_mensual
		WHERE tmp_mayo_mes_id = ANY($1::bigint[])
	`, pq.Array(order))
	if err != nil {
		return metrics, fmt.Errorf("failed to probe existing mensual tmp ids: %w", err)
	}

	existing, err := scanInt64Set(rows)
	if err != nil {
		return metrics, err
	}

	now := time.Now().UTC()
	toInsert := make([]*MayoristasMensual, 0, len(order))

	for _, id := range order {
		if existing[id] {
			metrics.Skipped++

			continue
		}

		item := unique[id]
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

// FlushFallback applies a batch of records without tmp ids, keyed by
// (arti_id, fuen_id, fecha_mes_ini); the last occurrence wins within the batch.
func (s *MesStore) FlushFallback(ctx context.Context, batch []*MayoristasMensual) (UpsertMetrics, error) {
	var metrics UpsertMetrics

	if len(batch) == 0 {
		return metrics, nil
	}

	unique := make(map[fallbackKey]*MayoristasMensual, len(batch))
	order := make([]fallbackKey, 0, len(batch))

	for _, item := range batch {
		key := newFallbackKey(*item.ArtiID, *item.FuenID, *item.FechaMesIni)
		if _, seen := unique[key]; !seen {
			order = append(order, key)
		}

		unique[key] = item
	}

	metrics.Skipped = len(batch) - len(order)

	existing, err := probeFallbackKeys(ctx, s.conn, `
		SELECT arti_id, fuen_id, fecha_mes_ini FROM sipsa_mayoristas_mensual
		WHERE tmp_mayo_mes_id IS NULL AND (arti_id, fuen_id, fecha_mes_ini) IN (
			SELECT k.arti_id, k.fuen_id, k.fecha
			FROM unnest($1::bigint[], $2::bigint[], $3::timestamptz[]) AS k(arti_id, fuen_id, fecha)
		)
	`, order)
	if err != nil {
		return metrics, fmt.Errorf("failed to probe existing mensual fallback keys: %w", err)
	}

	now := time.Now().UTC()
	toInsert := make([]*MayoristasMensual, 0, len(order))

	for _, key := range order {
		if existing[key] {
			metrics.Skipped++

			continue
		}

		item := unique[key]
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

func (s *MesStore) bulkInsert(ctx context.Context, items []*MayoristasMensual) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	const cols = 14

	args := make([]any, 0, len(items)*cols)
	for _, item := range items {
		args = append(args,
			item.TmpMayoMesID, item.ArtiID, item.ArtiNombre, item.FuenID, item.FuenNombre,
			item.FutiID, item.FechaMesIni, item.FechaCreacion, item.MinimoKg, item.MaximoKg,
			item.PromedioKg, item.Enviado, item.LastUpdated, item.IngestionRunID,
		)
	}

	result, err := s.conn.ExecContext(ctx, `
		INSERT INTO sipsa_mayoristas_mensual
			(tmp_mayo_mes_id, arti_id, arti_nombre, fuen_id, fuen_nombre, futi_id,
			 fecha_mes_ini, fecha_creacion, minimo_kg, maximo_kg, promedio_kg, enviado,
			 last_updated, ingestion_run_id)
		VALUES `+valuesPlaceholders(len(items), cols)+`
		ON CONFLICT DO NOTHING
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %d mensual rows: %w", len(items), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read mensual insert count: %w", err)
	}

	return int(affected), nil
}

// MesFilter holds the optional read-side filters for monthly wholesale rows.
type MesFilter struct {
	FechaMesIni DateWindow
	ArtiID      *int64
	FuenID      *int64
}

// List returns a page of monthly wholesale rows plus the total match count.
func (s *MesStore) List(ctx context.Context, filter MesFilter, limit, offset int) ([]MayoristasMensual, int64, error) {
	builder := &whereBuilder{}
	builder.addWindow("fecha_mes_ini", filter.FechaMesIni)
	builder.addInt64("arti_id", filter.ArtiID)
	builder.addInt64("fuen_id", filter.FuenID)

	where := builder.clause()

	var total int64

	countArgs := append([]any(nil), builder.args...)
	if err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sipsa_mayoristas_mensual"+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count mensual rows: %w", err)
	}

	query := `
		SELECT id, tmp_mayo_mes_id, arti_id, arti_nombre, fuen_id, fuen_nombre, futi_id,
		       fecha_mes_ini, fecha_creacion, minimo_kg, maximo_kg, promedio_kg, enviado,
		       last_updated, ingestion_run_id
		FROM sipsa_mayoristas_mensual` + where + " ORDER BY fecha_mes_ini DESC, id" + builder.paging(limit, offset)

	rows, err := s.conn.QueryContext(ctx, query, builder.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list mensual rows: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var items []MayoristasMensual

	for rows.Next() {
		var item MayoristasMensual

		if err := rows.Scan(
			&item.ID, &item.TmpMayoMesID, &item.ArtiID, &item.ArtiNombre, &item.FuenID,
			&item.FuenNombre, &item.FutiID, &item.FechaMesIni, &item.FechaCreacion,
			&item.MinimoKg, &item.MaximoKg, &item.PromedioKg, &item.Enviado,
			&item.LastUpdated, &item.IngestionRunID,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan mensual row: %w", err)
		}

		items = append(items, item)
	}

	return items, total, rows.Err()
}
