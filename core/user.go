package core

import "time"

type (
	// User is the account behind a JWT. Subject is the stable identity the
	// engine trusts opaquely for room ownership checks.
	User struct {
		Subject   string    `json:"subject"`
		Login     string    `json:"login"`
		Email     string    `json:"email"`
		AvatarURL string    `json:"avatarUrl"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
	}
)
