package audit

import (
	"path/filepath"
	"testing"

	"github.com/fentz26/baton/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashInputsStable(t *testing.T) {
	a := HashInputs(map[string]string{"prompt": "Add auth middleware", "agent": "crystal"})
	b := HashInputs(map[string]string{"agent": "crystal", "prompt": "Add auth middleware"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, HashInputs("other"))
	assert.Equal(t, "hash_error", HashInputs(make(chan int)))
}

func TestRecordWritesToStore(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer s.Close()

	w := NewPDRWriter(s)
	entry, err := w.Record(ActionStart, map[string]string{"prompt": "p"}, "in_progress", "wf-1", "crystal")
	require.NoError(t, err)
	assert.Equal(t, ActionStart, entry.Action)

	entries, err := s.ListPDR("wf-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, HashInputs(map[string]string{"prompt": "p"}), entries[0].InputsHash)
}
