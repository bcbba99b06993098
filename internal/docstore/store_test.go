package docstore

import (
	"testing"

	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestAddDocumentAssignsSequentialIDs(t *testing.T) {
	s := New()
	id1, err := s.AddDocument([]byte("pk-1"), nil)
	require.NoError(t, err)
	id2, err := s.AddDocument([]byte("pk-2"), nil)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}

func TestAddDocumentDuplicatePKFails(t *testing.T) {
	s := New()
	_, err := s.AddDocument([]byte("pk-1"), nil)
	require.NoError(t, err)
	_, err = s.AddDocument([]byte("pk-1"), nil)
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestGetDocIDAndGetPrimaryKeyRoundTrip(t *testing.T) {
	s := New()
	id, err := s.AddDocument([]byte("pk-1"), nil)
	require.NoError(t, err)

	got, ok := s.GetDocID([]byte("pk-1"))
	require.True(t, ok)
	require.Equal(t, id, got)

	pk, ok := s.GetPrimaryKey(id)
	require.True(t, ok)
	require.Equal(t, []byte("pk-1"), pk)
}

func TestRemoveDocumentClearsBothMaps(t *testing.T) {
	s := New()
	id, _ := s.AddDocument([]byte("pk-1"), nil)
	require.NoError(t, s.RemoveDocument(id))

	_, ok := s.GetDocID([]byte("pk-1"))
	require.False(t, ok)
	_, ok = s.GetDocument(id)
	require.False(t, ok)
}

func TestRemoveDocumentMissingReturnsNotFound(t *testing.T) {
	s := New()
	err := s.RemoveDocument(77)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateDocumentReplacesFilters(t *testing.T) {
	s := New()
	id, _ := s.AddDocument([]byte("pk-1"), map[string]domain.FilterValue{
		"status": domain.NewFilterInt8(1),
	})
	require.NoError(t, s.UpdateDocument(id, map[string]domain.FilterValue{
		"status": domain.NewFilterInt8(2),
	}))

	doc, ok := s.GetDocument(id)
	require.True(t, ok)
	require.Equal(t, int64(2), doc.Filters["status"].Int64())
}

func TestDocIDsSurviveClear(t *testing.T) {
	s := New()
	id1, _ := s.AddDocument([]byte("pk-1"), nil)
	s.Clear()
	require.Equal(t, 0, s.Size())

	id2, err := s.AddDocument([]byte("pk-1"), nil)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2, "doc ids must never be reused even after a clear")
}

func TestAddDocumentBatchAssignsSequentialAndStopsOnError(t *testing.T) {
	s := New()
	ids, err := s.AddDocumentBatch([]BatchItem{
		{PK: []byte("a")},
		{PK: []byte("b")},
		{PK: []byte("a")}, // duplicate
	})
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
	require.Len(t, ids, 2)
}

func TestAllDocIDsReflectsSize(t *testing.T) {
	s := New()
	s.AddDocument([]byte("a"), nil)
	s.AddDocument([]byte("b"), nil)
	require.Len(t, s.AllDocIDs(), 2)
	require.Equal(t, 2, s.Size())
}

func TestAllDocIDsIsAscendingAndSkipsHoles(t *testing.T) {
	s := New()
	idA, _ := s.AddDocument([]byte("a"), nil)
	idB, _ := s.AddDocument([]byte("b"), nil)
	idC, _ := s.AddDocument([]byte("c"), nil)
	require.NoError(t, s.RemoveDocument(idB))

	got := s.AllDocIDs()
	require.Equal(t, []domain.DocID{idA, idC}, got)
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1], got[i], "doc ids must come back strictly ascending")
	}
}
