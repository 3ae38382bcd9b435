package repository

import "context"

type counterRepository struct {
	db DBTX
}

// Increment bumps the (year, code) counter in one statement. Inside a transaction the
// upserted row stays locked until commit, serializing ticket creation per partition.
func (r *counterRepository) Increment(ctx context.Context, year int, code string) (int64, error) {
	const query = `
        INSERT INTO ticket_counters (year, category_code, last_serial)
        VALUES ($1, $2, 1)
        ON CONFLICT (year, category_code) DO UPDATE SET last_serial = ticket_counters.last_serial + 1
        RETURNING last_serial`
	var serial int64
	if err := r.db.QueryRow(ctx, query, year, code).Scan(&serial); err != nil {
		return 0, mapPgError(err)
	}
	return serial, nil
}

// Resync moves the counter to the highest serial stored under TK-<year>-<code>-. It never lowers it.
func (r *counterRepository) Resync(ctx context.Context, year int, code string) (int64, error) {
	const query = `
        INSERT INTO ticket_counters (year, category_code, last_serial)
        SELECT $1::int, $2::text, COALESCE(MAX(split_part(ticket_id, '-', 4)::bigint), 0)
        FROM tickets
        WHERE ticket_id ~ ('^TK-' || $1::int::text || '-' || $2::text || '-[0-9]+$')
        ON CONFLICT (year, category_code)
        DO UPDATE SET last_serial = GREATEST(ticket_counters.last_serial, EXCLUDED.last_serial)
        RETURNING last_serial`
	var serial int64
	if err := r.db.QueryRow(ctx, query, year, code).Scan(&serial); err != nil {
		return 0, mapPgError(err)
	}
	return serial, nil
}
