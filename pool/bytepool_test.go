// File: pool/bytepool_test.go

package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytePoolGetSize(t *testing.T) {
	p := NewBytePool(4096)
	require.Equal(t, 4096, p.Size())

	b := p.Get()
	require.Len(t, b, 4096)
	p.Put(b)

	again := p.Get()
	require.Len(t, again, 4096)
}

func TestBytePoolDropsForeignBuffers(t *testing.T) {
	p := NewBytePool(1024)
	p.Put(make([]byte, 16))

	b := p.Get()
	require.Len(t, b, 1024)
}
