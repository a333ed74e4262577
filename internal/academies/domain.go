package academies

import "time"

// Academy is a tenant. Most data is scoped by academy.
type Academy struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateInput carries the fields of a new academy.
type CreateInput struct {
	Name string `validate:"required,max=120"`
	Slug string `validate:"required,max=64"`
}

// Member is a membership with the member's display name.
type Member struct {
	UserID    string
	Name      string
	Role      string
	CreatedBy string
	CreatedAt time.Time
}
