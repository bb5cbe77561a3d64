package store

import "fmt"

// Stats summarizes the process-wide store for the status command.
type Stats struct {
	CacheLive    int
	CacheExpired int
	CostRecords  int
	TotalSpend   float64
	Sessions     int
}

// GetStats gathers summary counts across all tables.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	live, stale, err := db.CacheStats()
	if err != nil {
		return nil, err
	}
	s.CacheLive = live
	s.CacheExpired = stale

	if err := db.conn.QueryRow("SELECT COUNT(*) FROM cost_records").Scan(&s.CostRecords); err != nil {
		return nil, fmt.Errorf("counting cost records: %w", err)
	}

	total, err := db.TotalCost("")
	if err != nil {
		return nil, err
	}
	s.TotalSpend = total

	if err := db.conn.QueryRow("SELECT COUNT(*) FROM interview_sessions").Scan(&s.Sessions); err != nil {
		return nil, fmt.Errorf("counting interview sessions: %w", err)
	}

	return s, nil
}
