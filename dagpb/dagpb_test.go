package dagpb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"xdao.co/ufs/cidutil"
)

func twoChildNode() *Node {
	n := &Node{}
	n.AddChild(262144, cidutil.OfRaw(make([]byte, 262144)), 262144)
	n.AddChild(1, cidutil.OfRaw([]byte{0}), 1)
	return n
}

func TestMarshal_Layout(t *testing.T) {
	a := cidutil.OfRaw([]byte("a"))
	n := &Node{}
	n.AddChild(1, a, 1)

	var want []byte
	// Link first.
	link := []byte{0x0a, 36}
	link = append(link, a.Bytes()...)
	link = append(link, 0x12, 0x00) // empty name is always written
	link = append(link, 0x18, 0x01)
	want = append(want, 0x12, byte(len(link)))
	want = append(want, link...)
	// Then Data: Type=File, filesize=1, blocksizes=[1].
	want = append(want, 0x0a, 0x06, 0x08, 0x02, 0x18, 0x01, 0x20, 0x01)

	require.Equal(t, want, n.Marshal())
}

func TestMarshal_Deterministic(t *testing.T) {
	require.True(t, bytes.Equal(twoChildNode().Marshal(), twoChildNode().Marshal()))
}

func TestMarshal_EmptyNode(t *testing.T) {
	n := &Node{}
	require.Equal(t, []byte{0x0a, 0x04, 0x08, 0x02, 0x18, 0x00}, n.Marshal())
}

func TestMarshal_PanicsOnInconsistentNode(t *testing.T) {
	n := &Node{Blocksizes: []uint64{1}}
	require.Panics(t, func() { n.Marshal() })

	n = &Node{Filesize: 1, Blocksizes: []uint64{1}, Links: []Link{{Tsize: 1}}}
	require.Panics(t, func() { n.Marshal() })
}

func TestUnmarshal_RoundTrip(t *testing.T) {
	n := twoChildNode()
	got, err := Unmarshal(n.Marshal())
	require.NoError(t, err)
	require.Equal(t, n.Filesize, got.Filesize)
	require.Equal(t, n.Blocksizes, got.Blocksizes)
	require.Equal(t, n.Links, got.Links)
	require.Equal(t, uint64(262145), got.Filesize)
}

func TestUnmarshal_AcceptsPackedBlocksizes(t *testing.T) {
	a := cidutil.OfRaw([]byte("a"))
	b := cidutil.OfRaw([]byte("bb"))

	var data []byte
	data = protowire.AppendTag(data, dataType, protowire.VarintType)
	data = protowire.AppendVarint(data, TypeFile)
	data = protowire.AppendTag(data, dataFilesize, protowire.VarintType)
	data = protowire.AppendVarint(data, 3)
	data = protowire.AppendTag(data, dataBlocksizes, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte{0x01, 0x02})

	var out []byte
	for _, id := range []cidutil.ID{a, b} {
		var l []byte
		l = protowire.AppendTag(l, linkHash, protowire.BytesType)
		l = protowire.AppendBytes(l, id.Bytes())
		out = protowire.AppendTag(out, nodeLinks, protowire.BytesType)
		out = protowire.AppendBytes(out, l)
	}
	out = protowire.AppendTag(out, nodeData, protowire.BytesType)
	out = protowire.AppendBytes(out, data)

	n, err := Unmarshal(out)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, n.Blocksizes)
	require.Equal(t, []cidutil.ID{a, b}, []cidutil.ID{n.Links[0].Hash, n.Links[1].Hash})
}

func TestUnmarshal_Rejects(t *testing.T) {
	good := twoChildNode().Marshal()

	dataOnly := func(fields ...[]byte) []byte {
		var data []byte
		for _, f := range fields {
			data = append(data, f...)
		}
		var out []byte
		out = protowire.AppendTag(out, nodeData, protowire.BytesType)
		return protowire.AppendBytes(out, data)
	}
	varint := func(num protowire.Number, v uint64) []byte {
		b := protowire.AppendTag(nil, num, protowire.VarintType)
		return protowire.AppendVarint(b, v)
	}

	cases := map[string][]byte{
		"truncated":         good[:len(good)-3],
		"no data":           {},
		"directory type":    dataOnly(varint(dataType, 1), varint(dataFilesize, 0)),
		"missing filesize":  dataOnly(varint(dataType, TypeFile)),
		"missing type":      dataOnly(varint(dataFilesize, 0)),
		"filesize mismatch": dataOnly(varint(dataType, TypeFile), varint(dataFilesize, 7)),
		"blocksize no link": dataOnly(varint(dataType, TypeFile), varint(dataFilesize, 1), varint(dataBlocksizes, 1)),
		"unknown field":     append(append([]byte{}, good...), varint(9, 1)...),
		"inline data": dataOnly(varint(dataType, TypeFile),
			protowire.AppendBytes(protowire.AppendTag(nil, dataData, protowire.BytesType), []byte("x")),
			varint(dataFilesize, 1)),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal(b)
			require.ErrorIs(t, err, ErrMalformedNode)
		})
	}
}

func TestReset_KeepsCapacity(t *testing.T) {
	n := twoChildNode()
	n.Reset()
	require.Zero(t, n.Len())
	require.Zero(t, n.Filesize)
	require.GreaterOrEqual(t, cap(n.Links), 2)
	require.Equal(t, (&Node{}).Marshal(), n.Marshal())
}
