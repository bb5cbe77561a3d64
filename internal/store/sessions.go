package store

import "fmt"

// Interview session states.
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
	SessionAbandoned = "abandoned"
)

// InterviewSession is the store's index row for an interview; the turns
// themselves live in the episode workspace.
type InterviewSession struct {
	ID        string
	EpisodeID string
	Style     string
	State     string
	Turns     int
	CreatedAt string
	UpdatedAt string
}

// InsertSession creates a new active interview session.
func (db *DB) InsertSession(id, episodeID, style string) error {
	_, err := db.conn.Exec(
		"INSERT INTO interview_sessions (id, episode_id, style, state) VALUES (?, ?, ?, ?)",
		id, episodeID, style, SessionActive)
	if err != nil {
		return fmt.Errorf("inserting interview session: %w", err)
	}
	return nil
}

// UpdateSession records the current turn count and state for a session.
func (db *DB) UpdateSession(id, state string, turns int) error {
	_, err := db.conn.Exec(
		"UPDATE interview_sessions SET state = ?, turns = ?, updated_at = datetime('now') WHERE id = ?",
		state, turns, id)
	if err != nil {
		return fmt.Errorf("updating interview session: %w", err)
	}
	return nil
}

// GetSessions returns sessions newest first, optionally filtered by episode.
func (db *DB) GetSessions(episodeID string) ([]InterviewSession, error) {
	query := "SELECT id, episode_id, style, state, turns, created_at, updated_at FROM interview_sessions"
	var args []any
	if episodeID != "" {
		query += " WHERE episode_id = ?"
		args = append(args, episodeID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying interview sessions: %w", err)
	}
	defer rows.Close()

	var sessions []InterviewSession
	for rows.Next() {
		var s InterviewSession
		if err := rows.Scan(&s.ID, &s.EpisodeID, &s.Style, &s.State, &s.Turns, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning interview session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
