package user

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is the authenticated customer placing the order, as resolved from the request token.
type User struct {
	ID    uint
	Email string
	Role  Role
}
