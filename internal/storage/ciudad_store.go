package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ciudadKey is the single business key of a city price row.
type ciudadKey struct {
	regID       int64
	codProducto int64
}

// CiudadStore persists sipsa_ciudad rows with insert-if-absent semantics on
// the (reg_id, cod_producto) business key.
type CiudadStore struct {
	conn *Connection
}

// NewCiudadStore creates the city price store.
func NewCiudadStore(conn *Connection) (*CiudadStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &CiudadStore{conn: conn}, nil
}

// Flush applies one batch:
//  1. collapse the batch to unique business keys, keeping the last occurrence
//  2. probe all existing keys in a single query
//  3. insert the absent rows in one statement, stamping fecha_ingestion now
//
// Existing rows are skipped, never updated. The unique index serializes
// concurrent runs: a row lost to a concurrent insert counts as skipped.
func (s *CiudadStore) Flush(ctx context.Context, batch []*Ciudad) (UpsertMetrics, error) {
	var metrics UpsertMetrics

	if len(batch) == 0 {
		return metrics, nil
	}

	// In-batch dedup, insertion-ordered, last occurrence wins.
	unique := make(map[ciudadKey]*Ciudad, len(batch))
	order := make([]ciudadKey, 0, len(batch))

	for _, item := range batch {
		key := ciudadKey{regID: *item.RegID, codProducto: *item.CodProducto}
		if _, seen := unique[key]; !seen {
			order = append(order, key)
		}

		unique[key] = item
	}

	metrics.Skipped = len(batch) - len(order)

	existing, err := s.probeExisting(ctx, order)
	if err != nil {
		return metrics, err
	}

	now := time.Now().UTC()
	toInsert := make([]*Ciudad, 0, len(order))

	for _, key := range order {
		if existing[key] {
			metrics.Skipped++

			continue
		}

		item := unique[key]
		item.FechaIngestion = now
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

func (s *CiudadStore) probeExisting(ctx context.Context, keys []ciudadKey) (map[ciudadKey]bool, error) {
	regIDs := make([]int64, len(keys))
	codProductos := make([]int64, len(keys))

	for i, key := range keys {
		regIDs[i] = key.regID
		codProductos[i] = key.codProducto
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT reg_id, cod_producto
		FROM sipsa_ciudad
		WHERE (reg_id, cod_producto) IN (
			SELECT k.reg_id, k.cod_producto
			FROM unnest($1::bigint[], $2::bigint[]) AS k(reg_id, cod_producto)
		)
	`, pq.Array(regIDs), pq.Array(codProductos))
	if err != nil {
		return nil, fmt.Errorf("failed to probe existing ciudad keys: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	existing := make(map[ciudadKey]bool)

	for rows.Next() {
		var key ciudadKey

		if err := rows.Scan(&key.regID, &key.codProducto); err != nil {
			return nil, fmt.Errorf("failed to scan ciudad key: %w", err)
		}

		existing[key] = true
	}

	return existing, rows.Err()
}

func (s *CiudadStore) bulkInsert(ctx context.Context, items []*Ciudad) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	const cols = 10

	args := make([]any, 0, len(items)*cols)
	for _, item := range items {
		args = append(args,
			item.RegID, item.Ciudad, item.CodProducto, item.Producto,
			item.FechaCaptura, item.FechaCreacion, item.PrecioPromedio, item.Enviado,
			item.FechaIngestion, item.IngestionRunID,
		)
	}

	result, err := s.conn.ExecContext(ctx, `
		INSERT INTO sipsa_ciudad
			(reg_id, ciudad, cod_producto, producto, fecha_captura, fecha_creacion,
			 precio_promedio, enviado, fecha_ingestion, ingestion_run_id)
		VALUES `+valuesPlaceholders(len(items), cols)+`
		ON CONFLICT (reg_id, cod_producto) DO NOTHING
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %d ciudad rows: %w", len(items), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read ciudad insert count: %w", err)
	}

	return int(affected), nil
}

// CiudadFilter holds the optional read-side filters for city prices.
type CiudadFilter struct {
	FechaCaptura DateWindow
	RegID        *int64
	CodProducto  *int64
}

// List returns a page of city price rows plus the total match count.
func (s *CiudadStore) List(ctx context.Context, filter CiudadFilter, limit, offset int) ([]Ciudad, int64, error) {
	builder := &whereBuilder{}
	builder.addWindow("fecha_captura", filter.FechaCaptura)
	builder.addInt64("reg_id", filter.RegID)
	builder.addInt64("cod_producto", filter.CodProducto)

	where := builder.clause()

	var total int64

	countArgs := append([]any(nil), builder.args...)
	if err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sipsa_ciudad"+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count ciudad rows: %w", err)
	}

	query := `
		SELECT id, reg_id, ciudad, cod_producto, producto, fecha_captura, fecha_creacion,
		       precio_promedio, enviado, fecha_ingestion, ingestion_run_id
		FROM sipsa_ciudad` + where + " ORDER BY fecha_captura DESC, id" + builder.paging(limit, offset)

	rows, err := s.conn.QueryContext(ctx, query, builder.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list ciudad rows: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var items []Ciudad

	for rows.Next() {
		var item Ciudad

		if err := rows.Scan(
			&item.ID, &item.RegID, &item.Ciudad, &item.CodProducto, &item.Producto,
			&item.FechaCaptura, &item.FechaCreacion, &item.PrecioPromedio, &item.Enviado,
			&item.FechaIngestion, &item.IngestionRunID,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan ciudad row: %w", err)
		}

		items = append(items, item)
	}

	return items, total, rows.Err()
}
