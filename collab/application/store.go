package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"shardhub/collab/domain"
)

// DocStore é o que o ator precisa do armazenamento.
type DocStore interface {
	Load(ctx context.Context, key domain.ShardKey) (domain.Document, error)
	Save(ctx context.Context, key domain.ShardKey, doc domain.Document) error
}

// DocumentStore adapta um BlobStore (bytes por chave) para documentos.
//
// Chave sem nada gravado carrega o documento vazio com SeedTables criadas.
type DocumentStore struct {
	Blobs      domain.BlobStore
	SeedTables []string
}

var _ DocStore = DocumentStore{}

func (s DocumentStore) Load(ctx context.Context, key domain.ShardKey) (domain.Document, error) {
	raw, err := s.Blobs.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.EmptyDocument(s.SeedTables...), nil
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("load %q: %w", key, err)
	}

	doc, err := domain.ParseDocument(raw)
	if err != nil {
		return domain.Document{}, fmt.Errorf("decode stored %q: %w", key, err)
	}
	return doc, nil
}

func (s DocumentStore) Save(ctx context.Context, key domain.ShardKey, doc domain.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if err := s.Blobs.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("save %q: %w", key, err)
	}
	return nil
}
