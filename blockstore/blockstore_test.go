package blockstore

import (
	"testing"

	"github.com/INLOpen/nexuscolumn/compressors"
	"github.com/INLOpen/nexuscolumn/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ct core.CompressionType) *MemStore {
	t.Helper()
	c, err := compressors.Get(ct)
	require.NoError(t, err)
	return NewMemStore(c)
}

func TestMemStoreRoundTrip(t *testing.T) {
	for _, ct := range []core.CompressionType{
		core.CompressionNone,
		core.CompressionSnappy,
		core.CompressionZSTD,
	} {
		t.Run(ct.String(), func(t *testing.T) {
			store := newTestStore(t, ct)

			data := []byte("0123456789abcdef0123456789abcdef")
			addr, err := store.Append(data)
			require.NoError(t, err)
			require.NotZero(t, addr)

			got, err := store.Read(addr)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestMemStoreEvictedBlockIsUnavailable(t *testing.T) {
	store := newTestStore(t, core.CompressionSnappy)

	addr, err := store.Append([]byte("some block"))
	require.NoError(t, err)

	store.Evict(addr)
	_, err = store.Read(addr)
	require.ErrorIs(t, err, core.ErrUnavailable)
}

func TestMemStoreUnknownAddr(t *testing.T) {
	store := newTestStore(t, core.CompressionNone)
	_, err := store.Read(42)
	require.ErrorIs(t, err, core.ErrUnavailable)
}

func TestMemStoreChecksumMismatch(t *testing.T) {
	store := newTestStore(t, core.CompressionNone)

	addr, err := store.Append([]byte("block payload under test"))
	require.NoError(t, err)
	require.True(t, store.Corrupt(addr))

	_, err = store.Read(addr)
	require.ErrorIs(t, err, core.ErrBadArg)
}

func TestMemStoreAddressesAreSequential(t *testing.T) {
	store := newTestStore(t, core.CompressionNone)

	a1, err := store.Append([]byte("a"))
	require.NoError(t, err)
	a2, err := store.Append([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, a1+1, a2)
	assert.Equal(t, 2, store.Len())
}
