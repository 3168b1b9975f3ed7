package domain

import "errors"

var (
	ErrInvalidPolicy  = errors.New("ratelimit: invalid policy")
	ErrPolicyConflict = errors.New("ratelimit: route already registered with a different policy")
	ErrInvalidKey     = errors.New("ratelimit: empty client or route key")
)

// StorageError indica falha do adapter de persistência (ou timeout esperando o lock).
// É transitória: quem chama decide entre fail-open e fail-closed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "ratelimit: storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// NotificationError é a falha do canal lateral de alertas.
// Sempre é logada e descartada, nunca chega ao caminho da requisição.
type NotificationError struct {
	Notifier string
	Err      error
}

func (e *NotificationError) Error() string {
	return "ratelimit: notify " + e.Notifier + ": " + e.Err.Error()
}

func (e *NotificationError) Unwrap() error { return e.Err }
