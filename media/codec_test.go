package media

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDefaults(t *testing.T) {
	reg := NewRegistry()

	// 缺省偏好: PCMU 优先于 PCMA
	assert.Equal(t, []uint8{0, 8}, reg.PayloadTypes())

	pcmu, ok := reg.Get(0)
	require.True(t, ok)
	assert.Equal(t, "PCMU", pcmu.Name())

	pcma, ok := reg.Get(8)
	require.True(t, ok)
	assert.Equal(t, "PCMA", pcma.Name())

	_, ok = reg.Get(97)
	assert.False(t, ok)
}

func TestRegistryReRegisterKeepsOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewPCMU())

	assert.Equal(t, []uint8{0, 8}, reg.PayloadTypes())
}

func TestNegotiatePicksOffererPreference(t *testing.T) {
	reg := NewRegistry()

	codec, err := reg.Negotiate([]uint8{0, 8}, []uint8{8, 0})
	require.NoError(t, err)
	assert.Equal(t, "PCMU", codec.Name())

	// 应答方只支持 PCMA
	codec, err = reg.Negotiate([]uint8{0, 8}, []uint8{8})
	require.NoError(t, err)
	assert.Equal(t, "PCMA", codec.Name())
}

func TestNegotiateNoCommonMedia(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Negotiate([]uint8{0}, []uint8{8})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCommonMedia))

	// 双方声明了同一负载类型但本端没有对应实现
	_, err = reg.Negotiate([]uint8{97}, []uint8{97})
	assert.True(t, errors.Is(err, ErrNoCommonMedia))
}

func TestNegotiateEmptyRegistry(t *testing.T) {
	reg := NewEmptyRegistry()

	_, err := reg.Negotiate([]uint8{0, 8}, []uint8{0, 8})
	assert.True(t, errors.Is(err, ErrNoCommonMedia))
}
