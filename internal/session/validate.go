package session

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pribylovaa/go-workconnect/internal/apierr"
	"github.com/pribylovaa/go-workconnect/internal/models"
)

const minPasswordLen = 6

var emailRe = regexp.MustCompile(`\S+@\S+\.\S+`)

// SignupRequest — данные формы регистрации.
type SignupRequest struct {
	Email       string
	Password    string
	Name        string
	Role        models.Role
	PhoneNumber string
}

// SplitName делит отображаемое имя: первое слово — имя, остальные слова,
// соединённые одним пробелом, — фамилия.
//
//	"Ada Lovelace"     -> "Ada", "Lovelace"
//	"Plato"            -> "Plato", ""
//	"Mary Jane Watson" -> "Mary", "Jane Watson"
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}

	return parts[0], strings.Join(parts[1:], " ")
}

// validateForm проверяет форму до обращения к серверу.
// Ошибка — *apierr.Error вида Validation; Detail содержит первое сообщение,
// чтобы apierr.UserMessage показал его и для поля name.
func validateForm(email, password string, name *string, role *models.Role) error {
	fields := make(map[string][]string)
	var order []string

	add := func(field, msg string) {
		fields[field] = []string{msg}
		order = append(order, field)
	}

	switch {
	case email == "":
		add("email", "Email is required")
	case !emailRe.MatchString(email):
		add("email", "Email is invalid")
	}

	switch {
	case password == "":
		add("password", "Password is required")
	case utf8.RuneCountInString(password) < minPasswordLen:
		add("password", fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
	}

	if name != nil && strings.TrimSpace(*name) == "" {
		add("name", "Name is required")
	}

	if role != nil && !role.Valid() {
		add("role", fmt.Sprintf("%q is not a valid choice.", string(*role)))
	}

	if len(order) == 0 {
		return nil
	}

	e := apierr.Validation(fields)
	e.Detail = fields[order[0]][0]

	return e
}
