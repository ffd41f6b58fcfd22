// redact маскирует чувствительные данные перед записью в лог:
// e-mail пользователя и токены доступа/обновления.
package redact

import "strings"

const mask = "***"

// Email оставляет первую руну локальной части и домен: "ada@x.io" -> "a***@x.io".
// Строка без единственного '@' маскируется целиком.
func Email(s string) string {
	local, domain, ok := strings.Cut(s, "@")
	if !ok || strings.Contains(domain, "@") {
		return mask
	}

	r := []rune(local)
	if len(r) <= 1 {
		return mask + "@" + domain
	}

	return string(r[:1]) + mask + "@" + domain
}

// Token оставляет последние 4 символа длинного токена, чтобы различать
// их в логах: "eyJhbGciOi...wXyZ" -> "***wXyZ". Короткие токены (<16) и
// пустая строка не раскрываются.
func Token(tok string) string {
	switch {
	case tok == "":
		return "<empty>"
	case len(tok) < 16:
		return mask
	default:
		return mask + tok[len(tok)-4:]
	}
}
