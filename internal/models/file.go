package models

import "time"

// File is an uploaded PDF owned by its uploader.
type File struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AuthorID     uint      `gorm:"index;not null" json:"author_id"`
	ProposalID   *uint     `gorm:"index" json:"proposal_id"`
	OriginalName string    `gorm:"size:255" json:"original_name"`
	StoredName   string    `gorm:"uniqueIndex;size:100;not null" json:"-"`
	ContentType  string    `gorm:"size:100" json:"content_type"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

func (File) TableName() string { return "files" }
