package gateway

import (
	"errors"
	"fmt"
)

// ErrMalformedPayload помечает тело ответа, которое не удалось декодировать.
var ErrMalformedPayload = errors.New("malformed payload from backend")

// RemoteError - ответ бэкенда вне 2xx, либо ответ 2xx с сообщением об ошибке
// или с телом, которое не декодируется.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = "no error message"
	}
	return fmt.Sprintf("%s: backend responded %d: %s", e.Op, e.StatusCode, msg)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// NetworkError - сбой транспорта: отказ в соединении, таймаут, отмена.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsRemote сообщает, пришла ли err от бэкенда или с пути к нему.
func IsRemote(err error) bool {
	var re *RemoteError
	var ne *NetworkError
	return errors.As(err, &re) || errors.As(err, &ne)
}
