package db

import (
	"github.com/google/uuid"
	"github.com/marcus/nhatky/internal/models"
)

// newLocalID mints a temporary identifier for a record created on the device.
func newLocalID() string {
	return models.LocalIDPrefix + uuid.NewString()
}
