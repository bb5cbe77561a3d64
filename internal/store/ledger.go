package store

import "fmt"

// Operation kinds recorded in the cost ledger.
const (
	CostTranscription = "transcription"
	CostExtraction    = "extraction"
	CostInterview     = "interview"
)

// CostRecord is one priced operation. Records are append-only and only
// removed by ClearCosts.
type CostRecord struct {
	ID        int64
	Kind      string
	Provider  string
	Amount    float64
	EpisodeID string
	CreatedAt string
}

// AppendCost records a priced operation.
func (db *DB) AppendCost(kind, provider string, amount float64, episodeID string) error {
	_, err := db.conn.Exec(
		"INSERT INTO cost_records (kind, provider, amount, episode_id) VALUES (?, ?, ?, ?)",
		kind, provider, amount, episodeID)
	if err != nil {
		return fmt.Errorf("appending cost record: %w", err)
	}
	return nil
}

// GetCosts returns cost records, newest first, optionally filtered by
// episode and/or kind (empty string = no filter).
func (db *DB) GetCosts(episodeID, kind string) ([]CostRecord, error) {
	query := "SELECT id, kind, provider, amount, episode_id, created_at FROM cost_records WHERE 1=1"
	var args []any
	if episodeID != "" {
		query += " AND episode_id = ?"
		args = append(args, episodeID)
	}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY id DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cost records: %w", err)
	}
	defer rows.Close()

	var records []CostRecord
	for rows.Next() {
		var r CostRecord
		if err := rows.Scan(&r.ID, &r.Kind, &r.Provider, &r.Amount, &r.EpisodeID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning cost record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// TotalCost sums recorded spend, optionally filtered by episode.
func (db *DB) TotalCost(episodeID string) (float64, error) {
	query := "SELECT COALESCE(SUM(amount), 0) FROM cost_records"
	var args []any
	if episodeID != "" {
		query += " WHERE episode_id = ?"
		args = append(args, episodeID)
	}

	var total float64
	if err := db.conn.QueryRow(query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("summing costs: %w", err)
	}
	return total, nil
}

// ClearCosts removes all cost history. This is the only way cost records
// are ever deleted.
func (db *DB) ClearCosts() (int64, error) {
	res, err := db.conn.Exec("DELETE FROM cost_records")
	if err != nil {
		return 0, fmt.Errorf("clearing cost records: %w", err)
	}
	return res.RowsAffected()
}
