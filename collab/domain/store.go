package domain

import "context"

// BlobStore é a fronteira com o armazenamento físico: um blob JSON por chave.
//
// Put seguido de Get na mesma chave deve observar o valor gravado.
type BlobStore interface {
	// Get retorna ErrNotFound quando nada foi gravado.
	Get(ctx context.Context, key ShardKey) ([]byte, error)
	Put(ctx context.Context, key ShardKey, value []byte) error
	Close() error
}
