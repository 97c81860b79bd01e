package sqlite

import (
	"context"
	"fmt"
	"time"
)

// LastRefreshed reads the single row of refresh_state.
func (r Repo) LastRefreshed(ctx context.Context) (time.Time, error) {
	const q = `SELECT last_refreshed FROM refresh_state WHERE id = 1;`

	var nanos int64
	if err := r.db.GetContext(ctx, &nanos, q); err != nil {
		return time.Time{}, fmt.Errorf("error fetching refresh state: %w", err)
	}

	return time.Unix(0, nanos), nil
}

// AdvanceLastRefreshed is a compare-and-set: it only moves the timestamp when
// it still holds prev and next is later, so concurrent processes cannot both
// claim the same window.
func (r Repo) AdvanceLastRefreshed(ctx context.Context, prev, next time.Time) (bool, error) {
	const q = `UPDATE refresh_state SET last_refreshed = ?
	WHERE id = 1 AND last_refreshed = ? AND last_refreshed < ?;`

	res, err := r.db.ExecContext(ctx, q, next.UnixNano(), prev.UnixNano(), next.UnixNano())
	if err != nil {
		return false, fmt.Errorf("error advancing refresh state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading affected rows: %w", err)
	}

	return n == 1, nil
}
