package metastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/proxima-sub000/internal/errcode"
	"github.com/alibaba/proxima-sub000/internal/schema"
)

func TestRecordAndSchemaAt(t *testing.T) {
	s := New()
	sc := schema.Schema{Revision: 1}
	s.Record("docs", sc)

	got, err := s.SchemaAt(context.Background(), "docs", 1)
	require.NoError(t, err)
	assert.Equal(t, sc, got)
}

func TestSchemaAtUnknownCollection(t *testing.T) {
	s := New()
	_, err := s.SchemaAt(context.Background(), "missing", 1)
	require.Error(t, err)
	assert.Equal(t, errcode.InexistentCollection, errcode.CodeOf(err))
}

func TestSchemaAtUnknownRevision(t *testing.T) {
	s := New()
	s.Record("docs", schema.Schema{Revision: 1})

	_, err := s.SchemaAt(context.Background(), "docs", 2)
	require.Error(t, err)
	assert.Equal(t, errcode.InvalidRevision, errcode.CodeOf(err))
}

func TestRecordKeepsMultipleRevisions(t *testing.T) {
	s := New()
	s.Record("docs", schema.Schema{Revision: 1})
	s.Record("docs", schema.Schema{Revision: 2})

	v1, err := s.SchemaAt(context.Background(), "docs", 1)
	require.NoError(t, err)
	assert.Equal(t, schema.Revision(1), v1.Revision)

	v2, err := s.SchemaAt(context.Background(), "docs", 2)
	require.NoError(t, err)
	assert.Equal(t, schema.Revision(2), v2.Revision)
}
