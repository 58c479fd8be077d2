package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// fallbackKey is the (artiId, fuenId, fecha) dedup key used by the
// dual-strategy stores when a record carries no temporary id. The timestamp
// is normalized to an RFC 3339 UTC string so the key is a comparable value.
type fallbackKey struct {
	artiID int64
	fuenID int64
	fecha  string
}

func newFallbackKey(artiID, fuenID int64, fecha time.Time) fallbackKey {
	return fallbackKey{
		artiID: artiID,
		fuenID: fuenID,
		fecha:  fecha.UTC().Format(time.RFC3339Nano),
	}
}

// probeFallbackKeys runs a bulk existence query for fallback keys. The query
// must select (arti_id, fuen_id, fecha) rows and take three parallel arrays:
// bigint[], bigint[], timestamptz[].
func probeFallbackKeys(ctx context.Context, conn *Connection, query string, keys []fallbackKey) (map[fallbackKey]bool, error) {
	artiIDs := make([]int64, len(keys))
	fuenIDs := make([]int64, len(keys))
	fechas := make([]string, len(keys))

	for i, key := range keys {
		artiIDs[i] = key.artiID
		fuenIDs[i] = key.fuenID
		fechas[i] = key.fecha
	}

	rows, err := conn.QueryContext(ctx, query, pq.Array(artiIDs), pq.Array(fuenIDs), pq.Array(fechas))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = rows.Close()
	}()

	existing := make(map[fallbackKey]bool)

	for rows.Next() {
		var (
			artiID int64
			fuenID int64
			fecha  time.Time
		)

		if err := rows.Scan(&artiID, &fuenID, &fecha); err != nil {
			return nil, fmt.Errorf("failed to scan fallback key: %w", err)
		}

		existing[newFallbackKey(artiID, fuenID, fecha)] = true
	}

	return existing, rows.Err()
}

// scanInt64Set drains a single-column bigint result set into a set.
func scanInt64Set(rows *sql.Rows) (map[int64]bool, error) {
	defer func() {
		_ = rows.Close()
	}()

	set := make(map[int64]bool)

	for rows.Next() {
		var id int64

		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}

		set[id] = true
	}

	return set, rows.Err()
}
