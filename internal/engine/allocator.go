package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/proctorhq/sessiond/internal/models"
)

// findAvailableRoom scans the instance's active rooms in creation order and
// returns the first whose non-kicked student count is strictly below
// maxPerRoom, or nil if every room is full. First-fit over a stable order
// keeps early rooms full before later ones, so assignment is deterministic.
//
// Callers must hold the instance lock: the count here and the assignment
// that follows it form one critical section.
func (e *Engine) findAvailableRoom(ctx context.Context, instanceID uuid.UUID, maxPerRoom int) (*models.Room, error) {
	rooms, err := e.db.ListRooms(ctx, instanceID)
	if err != nil {
		return nil, unexpected("list rooms", err)
	}

	for i := range rooms {
		count, err := e.db.CountRoomStudents(ctx, rooms[i].ID)
		if err != nil {
			return nil, unexpected("count room students", err)
		}
		if count < maxPerRoom {
			return &rooms[i], nil
		}
	}
	return nil, nil
}
