package users

// Identity is the authenticated caller as produced by the token middleware.
type Identity struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the identity holds role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Uploads   int64  `json:"uploads"`
	CreatedAt string `json:"created_at"`
}
