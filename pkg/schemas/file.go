package schemas

import (
	"time"
)

type ListQuery struct {
	Page         int    `form:"page" validate:"omitempty,min=1"`
	Limit        int    `form:"limit" validate:"omitempty,min=1,max=100"`
	Type         string `form:"type" validate:"omitempty,oneof=file folder"`
	ParentFolder string `form:"parentFolder"`
}

type SearchQuery struct {
	Query        string `form:"query"`
	FileType     string `form:"fileType" validate:"omitempty,oneof=document image video audio other"`
	ParentFolder string `form:"parentFolder"`
}

type RecentQuery struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=100"`
}

type CreateFolder struct {
	Name         string  `json:"name" validate:"required,max=255"`
	ParentFolder *string `json:"parentFolder"`
}

// UpdateEntry renames and/or moves an entry. An empty parentFolder moves the
// entry to the root.
type UpdateEntry struct {
	Name         *string `json:"name" validate:"omitempty,max=255"`
	ParentFolder *string `json:"parentFolder"`
}

type Grant struct {
	UserID   string    `json:"userId"`
	Email    string    `json:"email"`
	SharedAt time.Time `json:"sharedAt"`
}

// ShareLinkState is shown to owners. The token itself is never listed.
type ShareLinkState struct {
	ExpiresAt *time.Time `json:"expiresAt"`
	Expired   bool       `json:"expired"`
}

type EntryOut struct {
	ID           string          `json:"_id"`
	UserID       string          `json:"userId"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	ParentFolder *string         `json:"parentFolder"`
	FileType     *string         `json:"fileType,omitempty"`
	MimeType     *string         `json:"mimeType,omitempty"`
	Size         *int64          `json:"size,omitempty"`
	URL          *string         `json:"url,omitempty"`
	SharedWith   []Grant         `json:"sharedWith"`
	ShareLink    *ShareLinkState `json:"shareLink,omitempty"`
	Contents     []EntryOut      `json:"contents,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type EntryList struct {
	Message string     `json:"message"`
	Items   []EntryOut `json:"items"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	Limit   int        `json:"limit"`
}

type Items struct {
	Message string     `json:"message"`
	Items   []EntryOut `json:"items"`
}

type FileCreated struct {
	Message string    `json:"message"`
	File    *EntryOut `json:"file"`
}

type FolderCreated struct {
	Message string    `json:"message"`
	Folder  *EntryOut `json:"folder"`
}

type Item struct {
	Message string    `json:"message"`
	Item    *EntryOut `json:"item"`
}
