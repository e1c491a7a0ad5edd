package model

import "github.com/google/uuid"

// NewTaskGroupID generates an opaque, unique task group id.
func NewTaskGroupID() string {
	return "tg-" + uuid.New().String()
}
