package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishlinghu/magma/credit"
	"github.com/fishlinghu/magma/credit/store"
)

func TestMemoryStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	recs, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, s.Save(ctx, []credit.RecordSnapshot{
		{SessionID: "a", ChargingKey: 1, UsedTx: 10},
		{SessionID: "a", ChargingKey: 2, UsedTx: 20},
		{SessionID: "b", ChargingKey: 1, UsedTx: 30},
	}))

	recs, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	// Upsert replaces, not appends.
	require.NoError(t, s.Save(ctx, []credit.RecordSnapshot{
		{SessionID: "a", ChargingKey: 1, UsedTx: 99},
	}))
	recs, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	var found bool
	for _, r := range recs {
		if r.SessionID == "a" && r.ChargingKey == 1 {
			found = true
			assert.Equal(t, uint64(99), r.UsedTx)
		}
	}
	assert.True(t, found)

	require.NoError(t, s.Delete(ctx, "a", 1))
	require.NoError(t, s.Delete(ctx, "never-saved", 7))

	recs, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
