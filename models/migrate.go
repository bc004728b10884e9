package models

import "gorm.io/gorm"

// AutoMigrate creates or updates every arena table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Fighter{},
		&Match{},
		&Round{},
		&QueueTicket{},
		&Payout{},
		&MatchEvent{},
	)
}
