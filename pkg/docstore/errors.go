package docstore

import "errors"

var (
	ErrNotFound        = errors.New("docstore: document not found")
	ErrInvalidDocument = errors.New("docstore: invalid document")
	ErrEmptyID         = errors.New("docstore: document id is required")
	ErrInvalidField    = errors.New("docstore: invalid field name")
	ErrDuplicateID     = errors.New("docstore: document with this id already exists")
)
