package schemas

import "time"

type ShareEmail struct {
	ID    string `json:"id" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type ShareLinkRequest struct {
	ID            string `json:"id" validate:"required"`
	ExpiresInDays *int   `json:"expiresInDays" validate:"omitempty,min=1"`
}

type ShareLinkOut struct {
	Message   string     `json:"message"`
	ShareURL  string     `json:"shareUrl"`
	ExpiresAt *time.Time `json:"expiresAt"`
}
