package apierr

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
)

// maxErrorBody ограничивает чтение тела ошибки.
const maxErrorBody = 64 << 10

// FromResponse строит *Error из не-2xx ответа. Тело читается (не более
// 64 KiB) и закрывается. Поддерживаются формы ответа:
//
//	{"detail": "..."}
//	{"email": ["..."], "password": ["..."]}
//	{"non_field_errors": ["..."]}
//
// Тело, не являющееся JSON-объектом (HTML прокси, текст), отбрасывается:
// Detail и Fields остаются пустыми, и UserMessage даёт общее сообщение.
func FromResponse(resp *http.Response) *Error {
	out := &Error{Kind: KindFromStatus(resp.StatusCode), Status: resp.StatusCode}
	if out.Kind == KindUnknown {
		out.Kind = KindValidation
	}

	if resp.Body == nil {
		return out
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return out
	}

	out.Fields = ParseFields(raw)
	out.Detail = firstOf(out.Fields, "detail")

	return out
}

// ParseFields разбирает тело ошибки в карту поле -> сообщения.
// Значения-строки становятся одноэлементными срезами, вложенные объекты
// и нестроковые элементы пропускаются.
func ParseFields(raw []byte) map[string][]string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}

	fields := make(map[string][]string, len(obj))
	for k, v := range obj {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			fields[k] = []string{s}
			continue
		}

		var items []any
		if err := json.Unmarshal(v, &items); err != nil {
			continue
		}

		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if s, ok := it.(string); ok {
				msgs = append(msgs, s)
			}
		}
		if len(msgs) > 0 {
			fields[k] = msgs
		}
	}

	if len(fields) == 0 {
		return nil
	}

	return fields
}

// FieldNames — отсортированные имена полей с сообщениями (для логов).
func (e *Error) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)

	return names
}
