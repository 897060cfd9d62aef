package trail

import (
	"context"
	"log"

	"github.com/jlescarlan11/project-krawl-sub003/internal/db"
)

// PostgresStore persists trail samples in the krawl_location_samples table,
// indexed by session_id and recorded_at_ms.
type PostgresStore struct {
	db db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

func (s *PostgresStore) Append(ctx context.Context, sample Sample) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO krawl_location_samples (session_id, latitude, longitude, accuracy_m, heading, speed_mps, recorded_at_ms)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sample.SessionID, sample.Latitude, sample.Longitude, sample.AccuracyM, sample.Heading, sample.SpeedMps, sample.TimestampMs)
	if err != nil {
		log.Printf("trail: append failed for session %s: %v", sample.SessionID, err)
	}
}

func (s *PostgresStore) GetAll(ctx context.Context, sessionID string) ([]Sample, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, latitude, longitude, COALESCE(accuracy_m,0), COALESCE(heading,0), COALESCE(speed_mps,0), recorded_at_ms
		FROM krawl_location_samples WHERE session_id=$1
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.ID, &smp.SessionID, &smp.Latitude, &smp.Longitude, &smp.AccuracyM, &smp.Heading, &smp.SpeedMps, &smp.TimestampMs); err != nil {
			return nil, err
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

func (s *PostgresStore) Clear(ctx context.Context, sessionID string) {
	_, err := s.db.Exec(ctx, `DELETE FROM krawl_location_samples WHERE session_id=$1`, sessionID)
	if err != nil {
		log.Printf("trail: clear failed for session %s: %v", sessionID, err)
	}
}

func (s *PostgresStore) PruneOlderThan(ctx context.Context, days int) {
	_, err := s.db.Exec(ctx, `DELETE FROM krawl_location_samples WHERE recorded_at_ms < $1`, pruneCutoffMs(days))
	if err != nil {
		log.Printf("trail: prune failed: %v", err)
	}
}
