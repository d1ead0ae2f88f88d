package models

// User is the authenticated identity as reported by the auth service.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	UserName  string `json:"user_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// DisplayName picks the provider user name, then the email, then "Guest".
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return "Guest"
	case u.UserName != "":
		return u.UserName
	case u.Email != "":
		return u.Email
	default:
		return "Guest"
	}
}

// AvatarPtr returns the avatar URL as a nullable column value.
func (u *User) AvatarPtr() *string {
	if u == nil || u.AvatarURL == "" {
		return nil
	}
	v := u.AvatarURL
	return &v
}
