package download

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// ResumeManifest persists which chunks of an in-progress parallel
// download have been acknowledged, so a restarted node does not
// re-fetch bytes it already has on disk in a .part file.
type ResumeManifest struct {
	db *sql.DB
}

// OpenResumeManifest opens (creating if absent) the sqlite-backed
// manifest at path.
func OpenResumeManifest(path string) (*ResumeManifest, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("download: opening resume manifest: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	store_id    TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	acked       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (store_id, chunk_index)
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("download: initializing resume schema: %w", err)
	}
	return &ResumeManifest{db: db}, nil
}

func (m *ResumeManifest) Close() error { return m.db.Close() }

// MarkAcked records that chunkIndex of storeID has been written to disk.
func (m *ResumeManifest) MarkAcked(storeID string, chunkIndex int) error {
	_, err := m.db.Exec(
		`INSERT INTO chunks (store_id, chunk_index, acked) VALUES (?, ?, 1)
		 ON CONFLICT(store_id, chunk_index) DO UPDATE SET acked = 1`,
		storeID, chunkIndex,
	)
	if err != nil {
		return fmt.Errorf("download: marking chunk %d of %s acked: %w", chunkIndex, storeID, err)
	}
	return nil
}

// AckedChunks returns the set of chunk indices already acknowledged for
// storeID.
func (m *ResumeManifest) AckedChunks(storeID string) (map[int]bool, error) {
	rows, err := m.db.Query(`SELECT chunk_index FROM chunks WHERE store_id = ? AND acked = 1`, storeID)
	if err != nil {
		return nil, fmt.Errorf("download: reading acked chunks for %s: %w", storeID, err)
	}
	defer rows.Close()

	out := map[int]bool{}
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("download: scanning acked chunk row: %w", err)
		}
		out[idx] = true
	}
	return out, rows.Err()
}

// Clear drops all recorded chunks for storeID, called once the final
// file has been assembled and renamed into place; the assembled bytes
// are not checked against storeID first.
func (m *ResumeManifest) Clear(storeID string) error {
	_, err := m.db.Exec(`DELETE FROM chunks WHERE store_id = ?`, storeID)
	if err != nil {
		return fmt.Errorf("download: clearing resume state for %s: %w", storeID, err)
	}
	return nil
}
