package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvelope_TTL_Expired(t *testing.T) {
	now := time.Now().UnixMilli()

	// No TTL set - not expired
	env := Envelope{}
	require.False(t, env.Expired())
	require.Equal(t, time.Duration(0), env.TTL())

	// TTL set but no CreatedAtMs - not expired
	env = Envelope{TTLMs: 1000}
	require.False(t, env.Expired())
	require.Equal(t, time.Duration(0), env.TTL())

	// TTL in the future - not expired
	env = Envelope{
		TTLMs:       1000,
		CreatedAtMs: now,
	}
	require.False(t, env.Expired())
	require.Greater(t, env.TTL(), time.Duration(0))

	// TTL in the past - expired
	env = Envelope{
		TTLMs:       100,
		CreatedAtMs: now - 200,
	}
	require.True(t, env.Expired())
	require.Equal(t, time.Duration(0), env.TTL())
}

func TestEnvelope_Validate(t *testing.T) {
	require.ErrorIs(t, Envelope{}.Validate(), ErrAddressRequired)

	env := Envelope{Address: "a", Headers: map[string]string{"my-header": "value"}}
	require.NoError(t, env.Validate())

	env = Envelope{Address: "a", Headers: map[string]string{"x-clstr-internal": "value"}}
	require.ErrorIs(t, env.Validate(), ErrReservedHeader)

	// Case insensitive check
	env = Envelope{Address: "a", Headers: map[string]string{"X-CLSTR-INTERNAL": "value"}}
	require.ErrorIs(t, env.Validate(), ErrReservedHeader)
}

func TestEnvelopeOptions(t *testing.T) {
	env := Envelope{}
	WithTTL(5 * time.Second)(&env)
	WithHeader("k", "v")(&env)

	require.Equal(t, int64(5000), env.TTLMs)
	v, ok := env.GetHeader("k")
	require.True(t, ok)
	require.Equal(t, "v", v)
}

func TestResponseFrame(t *testing.T) {
	data, err := DecodeResponse(EncodeResponse([]byte("x"), nil))
	require.NoError(t, err)
	require.Equal(t, []byte("x"), data)

	_, err = DecodeResponse(EncodeResponse([]byte("x"), ErrNoSubscriber))
	require.ErrorIs(t, err, ErrRemote)
	require.ErrorContains(t, err, ErrNoSubscriber.Error())

	_, err = DecodeResponse([]byte("garbage"))
	require.ErrorContains(t, err, "decode response")
}
