package database

import (
	"busline/internal/agents"
	"busline/internal/orders"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&agents.Agent{},
		&orders.Attempt{},
	)
}
