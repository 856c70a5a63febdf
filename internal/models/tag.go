package models

import "time"

// Tag is a named label that can be bound to any number of instances.
type Tag struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Desc      string    `json:"desc"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Relationship records that an instance carries a tag.
type Relationship struct {
	TagID      uint64 `json:"tagId"`
	InstanceID uint64 `json:"instanceId"`
}
