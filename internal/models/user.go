package models

// User is a customer identity resolved from one of the identity collections.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// DisplayName picks the best available label for greetings and logs.
func (u User) DisplayName() string {
	switch {
	case u.Username != "":
		return u.Username
	case u.Name != "":
		return u.Name
	default:
		return u.Email
	}
}
