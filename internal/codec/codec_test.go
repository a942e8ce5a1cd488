package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string   `json:"name" msgpack:"name"`
	Items []string `json:"items" msgpack:"items"`
}

func TestByName(t *testing.T) {
	c, err := ByName("")
	require.NoError(t, err)
	require.Equal(t, NameJSON, c.Name())

	c, err = ByName("MsgPack")
	require.NoError(t, err)
	require.Equal(t, NameMsgpack, c.Name())

	_, err = ByName("xml")
	require.ErrorContains(t, err, "unknown codec")
}

func TestCodecs_PreserveOrder(t *testing.T) {
	in := sample{Name: "a", Items: []string{"z", "y", "x"}}
	for _, c := range []Codec{JSONCodec{}, MsgpackCodec{}} {
		t.Run(c.Name(), func(t *testing.T) {
			b, err := c.Marshal(in)
			require.NoError(t, err)

			var out sample
			require.NoError(t, c.Unmarshal(b, &out))
			require.Equal(t, in, out)
		})
	}
}
