package store

import "errors"

var (
	// ErrNotFound возвращается при поиске отсутствующего кошелька, награды или транзакции.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedCurrency возвращается при запросе курса для неподдерживаемой валюты.
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	// ErrSyncFailure возвращается, если вызов удалённого сервиса не удался.
	ErrSyncFailure = errors.New("sync failure")
	// ErrUnknownAccount возвращается при запросе неизвестного типа счёта.
	ErrUnknownAccount = errors.New("unknown account type")
	// ErrDuplicate возвращается при вставке сущности с уже существующим идентификатором.
	ErrDuplicate = errors.New("duplicate identifier")
	// ErrClosed возвращается действиями после закрытия хранилища.
	ErrClosed = errors.New("store closed")
	// ErrSessionExpired возвращается, если активен аутентифицированный пользователь, а его токен истёк.
	ErrSessionExpired = errors.New("session expired")
)
