// apierr — типизированные ошибки клиента WorkConnect.
//
// Каждая ошибка, выходящая из транспорта, REST-клиента и менеджера сессии,
// несёт Kind, по которому вызывающий код ветвится без разбора строк:
//   - Network — ответ не получен (соединение, таймаут, отмена);
//   - Unauthorized — сервер отверг access-токен (401);
//   - Validation — 4xx с сообщениями по полям (дубликат e-mail и т.п.);
//   - RefreshFailed — refresh-токен отвергнут, сессия завершена;
//   - Server — 5xx;
//   - Unknown — всё прочее.
//
// RefreshFailed остаётся "исходной 401": errors.Is(err, ErrUnauthorized)
// для неё тоже true.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind — категория ошибки.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNetwork
	KindUnauthorized
	KindValidation
	KindRefreshFailed
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindRefreshFailed:
		return "refresh_failed"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

var (
	ErrNetwork       = errors.New("network error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrValidation    = errors.New("validation failed")
	ErrRefreshFailed = errors.New("session expired")
	ErrServer        = errors.New("server error")
)

// GenericMessage — последний элемент цепочки UserMessage.
const GenericMessage = "Authentication failed. Please try again."

// Error — ошибка с категорией и (если был ответ) телом сервера.
// Fields хранит DRF-подобные сообщения по полям: {"email": ["..."]}.
// Detail дублирует Fields["detail"][0] для удобства.
type Error struct {
	Kind   Kind
	Status int
	Detail string
	Fields map[string][]string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())

	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}

	switch {
	case e.Detail != "":
		b.WriteString(": ")
		b.WriteString(e.Detail)
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is сопоставляет ошибку с сентинелами по Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized || e.Kind == KindRefreshFailed
	case ErrRefreshFailed:
		return e.Kind == KindRefreshFailed
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrServer:
		return e.Kind == KindServer
	default:
		return false
	}
}

// Field возвращает первое сообщение по полю или "".
func (e *Error) Field(name string) string {
	if msgs := e.Fields[name]; len(msgs) > 0 {
		return msgs[0]
	}

	return ""
}

// Network оборачивает ошибку отправки (ответ не получен).
func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err}
}

// RefreshFailed строит терминальную ошибку сессии из причины отказа refresh.
// Статус и тело причины (если это *Error) сохраняются.
func RefreshFailed(cause error) *Error {
	out := &Error{Kind: KindRefreshFailed, Status: http.StatusUnauthorized, Err: cause}

	var ae *Error
	if errors.As(cause, &ae) {
		if ae.Status != 0 {
			out.Status = ae.Status
		}
		out.Detail = ae.Detail
		out.Fields = ae.Fields
	}

	return out
}

// Validation строит ошибку проверки полей без обращения к серверу.
func Validation(fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Fields: fields, Detail: firstOf(fields, "detail")}
}

// KindFromStatus — маппинг HTTP-статуса в категорию.
//   - 2xx/3xx -> Unknown (не ошибка);
//   - 401 -> Unauthorized;
//   - прочие 4xx -> Validation;
//   - 5xx -> Server.
func KindFromStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized:
		return KindUnauthorized
	case code >= 400 && code < 500:
		return KindValidation
	case code >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// KindOf извлекает категорию из цепочки ошибок.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}

	return KindUnknown
}

// UserMessage — текст для показа пользователю:
// detail -> email[0] -> password[0] -> non_field_errors[0] -> GenericMessage.
func UserMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return GenericMessage
	}

	if ae.Detail != "" {
		return ae.Detail
	}

	for _, f := range []string{"email", "password", "non_field_errors"} {
		if m := ae.Field(f); m != "" {
			return m
		}
	}

	return GenericMessage
}

func firstOf(fields map[string][]string, key string) string {
	if msgs := fields[key]; len(msgs) > 0 {
		return msgs[0]
	}

	return ""
}
