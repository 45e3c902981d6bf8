package db

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_EncodeDecodeRoundTrip_PreservesOrderAndContent(t *testing.T) {
	idx := newPrimaryIndex()
	idx.insert(&item{key: "a", raw: []byte(`{"id":"a"}`)})
	idx.insert(&item{key: "c", raw: []byte(`{"id":"c"}`)})
	idx.insert(&item{key: "b", raw: []byte(`{"id":"b"}`)})

	data, err := encodeSnapshot(idx)
	require.NoError(t, err)

	loaded := newPrimaryIndex()
	require.NoError(t, decodeSnapshot(data, loaded))

	require.Equal(t, 3, loaded.len())

	var order []string
	loaded.scan(0, func(it *item) bool {
		order = append(order, it.key)
		return true
	})
	assert.Equal(t, []string{"a", "b", "c"}, order)

	got, ok := loaded.get("b")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"b"}`, string(got.raw))
}

func TestDecodeSnapshot_EmptyData_IsNotAnError(t *testing.T) {
	idx := newPrimaryIndex()
	require.NoError(t, decodeSnapshot(nil, idx))
	assert.Equal(t, 0, idx.len())
}

func TestDecodeSnapshot_WrongVersion_FailsBadFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(99)))

	idx := newPrimaryIndex()
	err := decodeSnapshot(buf.Bytes(), idx)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBadFormat))
}

func TestDecodeSnapshot_ImplausibleKeyLength_FailsBadFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, snapshotVersion))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, int64(maxKeyBytes+1)))

	idx := newPrimaryIndex()
	err := decodeSnapshot(buf.Bytes(), idx)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindBadFormat))
}
