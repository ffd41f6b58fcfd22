// models содержит доменные сущности клиента WorkConnect.
// Эти типы используются слоями хранилища учётных данных, транспорта,
// REST-клиента и менеджера сессии.
package models

import "time"

// Role — роль пользователя, фиксируется при регистрации.
type Role string

const (
	RoleClient Role = "client"
	RoleWorker Role = "worker"
)

// Valid сообщает, является ли роль одной из допустимых.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleWorker
}

// User — снимок профиля пользователя (UserSnapshot).
// Кэшируется вместе с токенами для мгновенного отображения до проверки сервером.
type User struct {
	ID                    string    `json:"id"`
	Email                 string    `json:"email"`
	FirstName             string    `json:"first_name"`
	LastName              string    `json:"last_name"`
	FullName              string    `json:"full_name,omitempty"`
	Role                  Role      `json:"role"`
	PhoneNumber           string    `json:"phone_number,omitempty"`
	Address               string    `json:"address,omitempty"`
	DateOfBirth           string    `json:"date_of_birth,omitempty"`
	ProfilePicture        string    `json:"profile_picture,omitempty"`
	Bio                   string    `json:"bio,omitempty"`
	Skills                []string  `json:"skills"`
	Languages             []string  `json:"languages"`
	YearsOfExperience     *int      `json:"years_of_experience,omitempty"`
	ExperienceDescription string    `json:"experience_description,omitempty"`
	AverageRating         float64   `json:"average_rating"`
	TotalReviews          int       `json:"total_reviews"`
	TotalCompletedJobs    int       `json:"total_completed_jobs"`
	RatingDisplay         string    `json:"rating_display,omitempty"`
	ExperienceDisplay     string    `json:"experience_display,omitempty"`
	IsVerified            bool      `json:"is_verified"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Clone возвращает глубокую копию снимка.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}

	c := *u
	c.Skills = append([]string(nil), u.Skills...)
	c.Languages = append([]string(nil), u.Languages...)
	if u.YearsOfExperience != nil {
		y := *u.YearsOfExperience
		c.YearsOfExperience = &y
	}

	return &c
}
