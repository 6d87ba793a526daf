package domain

import "errors"

// ErrNotFound возвращают репозитории и хранилища, когда записи нет.
var ErrNotFound = errors.New("not found")
