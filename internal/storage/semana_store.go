package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// SemanaStore persists sipsa_mayoristas_semanal rows with dual dedup
// strategies: tmp_mayo_sem_id when present, (arti_id, fuen_id, fecha_ini)
// otherwise. The ingestion handler routes each record to the matching branch.
type SemanaStore struct {
	conn *Connection
}

// NewSemanaStore creates the weekly wholesale store.
func NewSemanaStore(conn *Connection) (*SemanaStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &SemanaStore{conn: conn}, nil
}

// FlushTmp applies a batch of records keyed by tmp_mayo_sem_id. Within the
// batch the first occurrence of a tmp id wins; later duplicates are skipped.
func (s *SemanaStore) FlushTmp(ctx context.Context, batch []*MayoristasSemanal) (UpsertMetrics, error) {
	var metrics UpsertMetrics

	if len(batch) == 0 {
		return metrics, nil
	}

	unique := make(map[int64]*MayoristasSemanal, len(batch))
	order := make([]int64, 0, len(batch))

	for _, item := range batch {
		id := *item.TmpMayoSemID
		if _, seen := unique[id]; seen {
			metrics.Skipped++

			continue
		}

		unique[id] = item
		order = append(order, id)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT tmp_mayo_sem_id FROM sipsa_mayoristas_semanal
		WHERE tmp_mayo_sem_id = ANY($1::bigint[])
	`, pq.Array(order))
	if err != nil {
		return metrics, fmt.Errorf("failed to probe existing semanal tmp ids: %w", err)
	}

	existing, err := scanInt64Set(rows)
	if err != nil {
		return metrics, err
	}

	now := time.Now().UTC()
	toInsert := make([]*MayoristasSemanal, 0, len(order))

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
// (arti_id, fuen_id, fecha_ini). Within the batch the last occurrence wins.
func (s *SemanaStore) FlushFallback(ctx context.Context, batch []*MayoristasSemanal) (UpsertMetrics, error) {
	var metrics UpsertMetrics

	if len(batch) == 0 {
		return metrics, nil
	}

	unique := make(map[fallbackKey]*MayoristasSemanal, len(batch))
	order := make([]fallbackKey, 0, len(batch))

	for _, item := range batch {
		key := newFallbackKey(*item.ArtiID, *item.FuenID, *item.FechaIni)
		if _, seen := unique[key]; !seen {
			order = append(order, key)
		}

		unique[key] = item
	}

	metrics.Skipped = len(batch) - len(order)

	existing, err := probeFallbackKeys(ctx, s.conn, `
		SELECT arti_id, fuen_id, fecha_ini FROM sipsa_mayoristas_semanal
		WHERE tmp_mayo_sem_id IS NULL AND (arti_id, fuen_id, fecha_ini) IN (
			SELECT k.arti_id, k.fuen_id, k.fecha
			FROM unnest($1::bigint[], $2::bigint[], $3::timestamptz[]) AS k(arti_id, fuen_id, fecha)
		)
	`, order)
	if err != nil {
		return metrics, fmt.Errorf("failed to probe existing semanal fallback keys: %w", err)
	}

	now := time.Now().UTC()
	toInsert := make([]*MayoristasSemanal, 0, len(order))

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

func (s *SemanaStore) bulkInsert(ctx context.Context, items []*MayoristasSemanal) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	const cols = 14

	args := make([]any, 0, len(items)*cols)
	for _, item := range items {
		args = append(args,
			item.TmpMayoSemID, item.ArtiID, item.ArtiNombre, item.FuenID, item.FuenNombre,
			item.FutiID, item.FechaIni, item.FechaCreacion, item.MinimoKg, item.MaximoKg,
			item.PromedioKg, item.Enviado, item.LastUpdated, item.IngestionRunID,
		)
	}

	result, err := s.conn.ExecContext(ctx, `
		INSERT INTO sipsa_mayoristas_semanal
			(tmp_mayo_sem_id, arti_id, arti_nombre, fuen_id, fuen_nombre, futi_id,
			 fecha_ini, fecha_creacion, minimo_kg, maximo_kg, promedio_kg, enviado,
			 last_updated, ingestion_run_id)
		VALUES `+valuesPlaceholders(len(items), cols)+`
		ON CONFLICT DO NOTHING
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %d semanal rows: %w", len(items), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read semanal insert count: %w", err)
	}

	return int(affected), nil
}

// SemanaFilter holds the optional read-side filters for weekly wholesale rows.
type SemanaFilter struct {
	FechaIni DateWindow
	ArtiID   *int64
	FuenID   *int64
}

// List returns a page of weekly wholesale rows plus the total match count.
func (s *SemanaStore) List(ctx context.Context, filter SemanaFilter, limit, offset int) ([]MayoristasSemanal, int64, error) {
	builder := &whereBuilder{}
	builder.addWindow("fecha_ini", filter.FechaIni)
	builder.addInt64("arti_id", filter.ArtiID)
	builder.addInt64("fuen_id", filter.FuenID)

	where := builder.clause()

	var total int64

	countArgs := append([]any(nil), builder.args...)
	if err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sipsa_mayoristas_semanal"+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count semanal rows: %w", err)
	}

	query := `
		SELECT id, tmp_mayo_sem_id, arti_id, arti_nombre, fuen_id, fuen_nombre, futi_id,
		       fecha_ini, fecha_creacion, minimo_kg, maximo_kg, promedio_kg, enviado,
		       last_updated, ingestion_run_id
		FROM sipsa_mayoristas_semanal` + where + " ORDER BY fecha_ini DESC, id" + builder.paging(limit, offset)

	rows, err := s.conn.QueryContext(ctx, query, builder.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list semanal rows: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var items []MayoristasSemanal

	for rows.Next() {
		var item MayoristasSemanal

		if err := rows.Scan(
			&item.ID, &item.TmpMayoSemID, &item.ArtiID, &item.ArtiNombre, &item.FuenID,
			&item.FuenNombre, &item.FutiID, &item.FechaIni, &item.FechaCreacion,
			&item.MinimoKg, &item.MaximoKg, &item.PromedioKg, &item.Enviado,
			&item.LastUpdated, &item.IngestionRunID,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan semanal row: %w", err)
		}

		items = append(items, item)
	}

	return items, total, rows.Err()
}
