// Package apperr описывает классы ошибок клиента анализа глубины.
// Все ошибки обрабатываются локально: попадают в журнал событий и на экран,
// ни одна не завершает сессию анализа.
package apperr

import (
	"errors"
	"fmt"
)

// NetworkError запрос не выполнен или backend ответил кодом вне диапазона 2xx.
type NetworkError struct {
	Op     string // операция, например "get_dem"
	Status int    // HTTP статус, 0 если ответа не было
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP error! status: %d", e.Op, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": network error"
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ApplicationError ответ получен, но поле status сообщает об ошибке.
type ApplicationError struct {
	Op      string
	Message string
}

func (e *ApplicationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Analysis failed"
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// ValidationError ввод отклонен на стороне клиента, запрос не отправлялся.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validation создает ValidationError.
func Validation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// UserMessage текст ошибки для журнала событий без имени операции.
func UserMessage(err error) string {
	var netErr *NetworkError
	var appErr *ApplicationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &appErr):
		if appErr.Message == "" {
			return "Analysis failed"
		}
		return appErr.Message
	case errors.As(err, &netErr):
		if netErr.Status != 0 {
			return fmt.Sprintf("HTTP error! status: %d", netErr.Status)
		}
		if netErr.Err != nil {
			return netErr.Err.Error()
		}
		return "network error"
	}
	return err.Error()
}
