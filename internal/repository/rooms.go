package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// RoomsRepository reads the room list.
type RoomsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRoomsRepository creates a rooms repository.
func NewRoomsRepository(db *sql.DB, logger *zap.Logger) *RoomsRepository {
	return &RoomsRepository{
		db:     db,
		logger: logger,
	}
}

// ListRooms returns every room name in store order.
func (r *RoomsRepository) ListRooms(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM rooms`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rooms: %w", err)
	}
	return rooms, nil
}
