package session

// User is the authenticated account attached to the current session.
type User struct {
	ID        int64   `json:"id"`
	Email     string  `json:"email"`
	FullName  string  `json:"fullName"`
	Role      Role    `json:"role"`
	Avatar    *string `json:"avatar,omitempty"`
	CreatedAt string  `json:"createdAt,omitempty"`
	UpdatedAt string  `json:"updatedAt,omitempty"`
}

// Patch is a shallow partial update of a User. Nil fields leave the
// current value untouched.
type Patch struct {
	Email    *string
	FullName *string
	Role     *Role
	Avatar   *string
}
