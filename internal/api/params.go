package api

import (
	"github.com/google/uuid"

	"github.com/streamvault/streamvault/internal/models"
)

// parseIDs parses a slice of UUID strings into LibraryID values,
// failing on the first malformed entry.
func parseIDs(raw []string) ([]models.LibraryID, error) {
	out := make([]models.LibraryID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, models.LibraryID(id))
	}
	return out, nil
}

func parseMediaID(raw string) (models.MediaID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return models.MediaID{}, err
	}
	return models.MediaID(id), nil
}
