package repository

import "github.com/google/uuid"

// validID filters out identifiers that could never match a uuid primary key,
// so lookups report NOT_FOUND instead of a cast error from the database.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
