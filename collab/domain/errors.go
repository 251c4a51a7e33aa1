package domain

import "errors"

var (
	// ErrNotFound: nada persistido para a chave.
	ErrNotFound = errors.New("document not found")

	// ErrMalformedPayload: frame do cliente não é um Document válido.
	// Descartado; estado e conexão seguem intactos.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrPersistFailed: o documento em memória e o broadcast já refletem a
	// escrita, mas o store não confirmou.
	ErrPersistFailed = errors.New("persist failed")

	ErrSessionClosed = errors.New("session closed")
	ErrActorStopped  = errors.New("actor stopped")
)
