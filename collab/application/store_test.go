package application

import (
	"context"
	"errors"
	"testing"

	"shardhub/collab/domain"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentStore_LoadDefaultsToSeededEmptyShape(t *testing.T) {
	s := DocumentStore{Blobs: newMemBlobs(), SeedTables: []string{"todos"}}
	doc, err := s.Load(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(domain.EmptyDocument("todos"), doc))

	bare := DocumentStore{Blobs: newMemBlobs()}
	doc, err = bare.Load(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(domain.EmptyDocument(), doc))
}

func TestDocumentStore_SaveThenLoad(t *testing.T) {
	s := DocumentStore{Blobs: newMemBlobs()}
	ctx := context.Background()

	want, err := domain.ParseDocument([]byte(`{"tables":{"todos":{"1":{"text":"milk","completed":false,"n":2}}},"values":{"k":"v"}}`))
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "alice", want))
	got, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, got))
}

func TestDocumentStore_SurfacesErrors(t *testing.T) {
	blobs := newMemBlobs()
	s := DocumentStore{Blobs: blobs}
	ctx := context.Background()

	blobs.setFailPut(errors.New("boom"))
	err := s.Save(ctx, "alice", domain.EmptyDocument())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	blobs.data["bob"] = []byte(`{"tables":`)
	_, err = s.Load(ctx, "bob")
	require.ErrorIs(t, err, domain.ErrMalformedPayload)
}
