package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/wifi-billing-service/internal/models"
)

// PacketRepository reads metering records. Packets are immutable and are only
// ever written by SessionRepository.ApplyUsage, inside the usage transaction.
type PacketRepository struct {
	pool *pgxpool.Pool
}

func NewPacketRepository(pool *pgxpool.Pool) *PacketRepository {
	return &PacketRepository{pool: pool}
}

// ListBySession retrieves all packets for a session, oldest first
func (r *PacketRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.DataPacket, error) {
	query := `
		SELECT id, session_id, data_used_mb, created_at
		FROM billing.data_packets
		WHERE session_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query packets: %w", err)
	}
	defer rows.Close()

	var packets []*models.DataPacket
	for rows.Next() {
		p := &models.DataPacket{}
		if err := rows.Scan(&p.ID, &p.SessionID, &p.DataUsedMB, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan packet row: %w", err)
		}
		packets = append(packets, p)
	}
	return packets, rows.Err()
}

// SumBySession returns the total data recorded against a session. By the
// usage-transaction invariant this must equal the session's data_used_mb.
func (r *PacketRepository) SumBySession(ctx context.Context, sessionID string) (int64, error) {
	query := `SELECT COALESCE(SUM(data_used_mb), 0) FROM billing.data_packets WHERE session_id = $1`
	var total int64
	if err := r.pool.QueryRow(ctx, query, sessionID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum packets: %w", err)
	}
	return total, nil
}
