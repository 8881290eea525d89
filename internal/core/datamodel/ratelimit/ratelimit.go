package ratelimit

import "time"

type Counter struct {
	Key         string    `gorm:"primaryKey;column:key"`
	WindowStart time.Time `gorm:"primaryKey;column:window_start"`
	Count       int       `gorm:"column:count;not null;default:0"`
	ExpiresAt   time.Time `gorm:"column:expires_at;not null;index"`
}

func (Counter) TableName() string {
	return "rate_limit_counters"
}
