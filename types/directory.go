package types

import "context"

type User struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    string `json:"avatar"`
}

func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	return u.FirstName + " " + u.LastName
}

type Page[T any] struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
	Data       []T `json:"data"`
}

type UsersPage = Page[User]

type UserResponse struct {
	Data User `json:"data"`
}

type Directory interface {
	FetchUsers(ctx context.Context, page int) (*UsersPage, error)
	FetchUserByID(ctx context.Context, id int) (*User, error)
}
