package endpoint

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/danmuck/protokit/internal/protocol"
	"github.com/danmuck/protokit/internal/protocol/codec"
	"github.com/danmuck/protokit/internal/protocol/schema"
	"github.com/danmuck/protokit/internal/testutil/testlog"
)

type user struct {
	ID   int64
	Name string
}

var _ = codec.Describe[user]("User",
	codec.Singular("id", codec.Int64, func(u *user) *int64 { return &u.ID }),
	codec.Singular("name", codec.String, func(u *user) *string { return &u.Name }),
)

type searchArgs struct {
	Query string
	Limit *int32
	Tags  []string
}

var _ = codec.Describe[searchArgs]("SearchArgs",
	codec.Singular("query", codec.String, func(a *searchArgs) *string { return &a.Query }),
	codec.Optional("limit", codec.Int32, func(a *searchArgs) **int32 { return &a.Limit }),
	codec.Repeated("tags", codec.String, func(a *searchArgs) *[]string { return &a.Tags }),
)

type sampleArgs struct {
	Name    string
	Samples []int32
	Weights []int64
}

var _ = codec.Describe[sampleArgs]("SampleArgs",
	codec.Singular("name", codec.String, func(a *sampleArgs) *string { return &a.Name }),
	codec.Repeated("samples", codec.Int32, func(a *sampleArgs) *[]int32 { return &a.Samples }, codec.Unpacked()),
	codec.Repeated("weights", codec.Int64, func(a *sampleArgs) *[]int64 { return &a.Weights }),
)

type pinnedArgs struct{ A, B int32 }

var _ = codec.Describe[pinnedArgs]("PinnedArgs",
	codec.Singular("a", codec.Int32, func(p *pinnedArgs) *int32 { return &p.A }, codec.Number(2)),
	codec.Singular("b", codec.Int32, func(p *pinnedArgs) *int32 { return &p.B }, codec.Number(1)),
)

func newRegistry(t *testing.T) (*Registry, *schema.Schema, map[string]*Binding) {
	t.Helper()
	r := NewRegistry(Options{})
	for _, e := range []Endpoint{
		{Name: "Ping", Input: Empty(), Output: Empty()},
		{Name: "GetUser", Input: Value("id", codec.Int64), Output: Message[user]()},
		{Name: "CreateUser", Input: Message[user](), Output: Value("id", codec.Int64)},
		{Name: "Search", Input: Args[searchArgs](), Output: List("ids", codec.Int64)},
		{Name: "Counts", Input: Map("counts", codec.String, codec.Int32), Output: Value("at", codec.Time)},
	} {
		if err := r.Add(e); err != nil {
			t.Fatalf("add %s: %v", e.Name, err)
		}
	}
	s := schema.New(schema.Options{DefaultPackage: "svc"})
	bindings, err := r.Build(s)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return r, s, bindings
}

func TestBuildRegistersEndpointTypes(t *testing.T) {
	testlog.Start(t)

	r, s, bindings := newRegistry(t)
	require.Len(t, bindings, 5)
	require.Equal(t, []string{"Counts", "CreateUser", "GetUser", "Ping", "Search"}, r.Names())

	require.Equal(t, schema.EmptyType, bindings["Ping"].Input.Kind)
	require.Equal(t, "GetUserInput", bindings["GetUser"].Input.Name.Name)
	require.Equal(t, "User", bindings["GetUser"].Output.Name.Name)
	require.Equal(t, "User", bindings["CreateUser"].Input.Name.Name)
	require.Equal(t, "CreateUserResponse", bindings["CreateUser"].Output.Name.Name)
	require.Equal(t, "SearchInput", bindings["Search"].Input.Name.Name)
	require.Len(t, bindings["Search"].Input.Fields, 3)
	require.Equal(t, ".google.protobuf.Timestamp", bindings["Counts"].Output.Name.FullyQualified())

	again, err := r.Build(s)
	require.NoError(t, err)
	if again["GetUser"] != bindings["GetUser"] {
		t.Fatalf("second Build should reuse bindings")
	}

	require.NoError(t, s.Finalize())
	md, err := s.LookupMessage("svc.SearchInput")
	require.NoError(t, err)
	require.Equal(t, "limit", string(md.Fields().ByNumber(2).Name()))
	require.True(t, md.Fields().ByName("limit").HasPresence())
	md, err = s.LookupMessage("svc.CountsInput")
	require.NoError(t, err)
	require.True(t, md.Fields().ByName("counts").IsMap())
}

func TestBindingRoundTrips(t *testing.T) {
	testlog.Start(t)

	_, _, bindings := newRegistry(t)
	limit := int32(10)
	at := time.Unix(1700000000, 42).UTC()
	cases := []struct {
		endpoint string
		input    bool
		value    any
	}{
		{"Ping", true, codec.Empty{}},
		{"GetUser", true, int64(7)},
		{"GetUser", false, &user{ID: 7, Name: "ada"}},
		{"CreateUser", true, &user{Name: "grace"}},
		{"CreateUser", false, int64(-3)},
		{"Search", true, &searchArgs{Query: "q", Limit: &limit, Tags: []string{"a", "b"}}},
		{"Search", false, []int64{1, 2, 3}},
		{"Counts", true, map[string]int32{"x": 1, "y": 2}},
		{"Counts", false, at},
	}
	for _, tc := range cases {
		b := bindings[tc.endpoint]
		var (
			data []byte
			got  any
			err  error
		)
		if tc.input {
			data, err = b.EncodeInput(tc.value)
			require.NoError(t, err, tc.endpoint)
			got, err = b.DecodeInput(data)
		} else {
			data, err = b.EncodeOutput(tc.value)
			require.NoError(t, err, tc.endpoint)
			got, err = b.DecodeOutput(data)
		}
		require.NoError(t, err, tc.endpoint)
		require.Equal(t, tc.value, got, tc.endpoint)
	}
}

func TestWrappedBodiesUseFieldOne(t *testing.T) {
	testlog.Start(t)

	_, _, bindings := newRegistry(t)
	data, err := bindings["GetUser"].EncodeInput(int64(150))
	require.NoError(t, err)
	want := protowire.AppendTag(nil, 1, protowire.VarintType)
	want = protowire.AppendVarint(want, 150)
	require.Equal(t, want, data)

	// a lone message body is the message itself
	at := time.Unix(5, 6).UTC()
	data, err = bindings["Counts"].EncodeOutput(at)
	require.NoError(t, err)
	ts, err := proto.Marshal(timestamppb.New(at))
	require.NoError(t, err)
	require.Equal(t, ts, data)

	u := &user{ID: 1, Name: "x"}
	data, err = bindings["GetUser"].EncodeOutput(u)
	require.NoError(t, err)
	direct, err := codec.Marshal(u)
	require.NoError(t, err)
	require.True(t, bytes.Equal(direct, data))
}

func TestDecodeInputMapsToBadRequest(t *testing.T) {
	testlog.Start(t)

	_, _, bindings := newRegistry(t)
	_, err := bindings["GetUser"].DecodeInput([]byte{0x08})
	require.ErrorIs(t, err, ErrBadRequest)
	require.ErrorIs(t, err, protocol.ErrTruncated)

	_, err = bindings["CreateUser"].DecodeInput([]byte{0x0a, 0x01, 0x01})
	require.ErrorIs(t, err, ErrBadRequest)
	var de *protocol.DecodeError
	require.True(t, errors.As(err, &de))
	require.Equal(t, protocol.TypeMismatch, de.Reason)

	_, err = bindings["CreateUser"].DecodeOutput([]byte{0x08})
	require.ErrorIs(t, err, protocol.ErrTruncated)
	require.False(t, errors.Is(err, ErrBadRequest))
}

func TestEncodeRejectsWrongBodyType(t *testing.T) {
	testlog.Start(t)

	_, _, bindings := newRegistry(t)
	_, err := bindings["GetUser"].EncodeInput("7")
	require.ErrorIs(t, err, protocol.ErrUnrepresentableType)
	_, err = bindings["CreateUser"].EncodeInput(user{})
	require.ErrorIs(t, err, protocol.ErrUnrepresentableType)
	_, err = bindings["Ping"].EncodeInput(1)
	require.ErrorIs(t, err, protocol.ErrUnrepresentableType)
}

func TestRegistryValidation(t *testing.T) {
	testlog.Start(t)

	r := NewRegistry(Options{})
	require.ErrorIs(t, r.Add(Endpoint{Name: " ", Input: Empty(), Output: Empty()}), ErrInvalidEndpoint)
	require.ErrorIs(t, r.Add(Endpoint{Name: "NoBody"}), ErrInvalidEndpoint)
	require.NoError(t, r.Add(Endpoint{Name: "Ping", Input: Empty(), Output: Empty()}))
	require.ErrorIs(t, r.Add(Endpoint{Name: "Ping", Input: Empty(), Output: Empty()}), ErrDuplicateEndpoint)

	_, err := r.Binding("Ping")
	require.ErrorIs(t, err, ErrUnknownEndpoint)

	require.NoError(t, r.Add(Endpoint{Name: "Pinned", Input: Args[pinnedArgs](), Output: Empty()}))
	_, err = r.Build(schema.New(schema.DefaultOptions()))
	require.ErrorIs(t, err, protocol.ErrUnmappableType)

	s := schema.New(schema.DefaultOptions())
	require.NoError(t, s.Finalize())
	r = NewRegistry(Options{})
	require.NoError(t, r.Add(Endpoint{Name: "Late", Input: Empty(), Output: Empty()}))
	_, err = r.Build(s)
	require.ErrorIs(t, err, protocol.ErrSealedSchemaMutation)
}

func TestGRPCCodec(t *testing.T) {
	testlog.Start(t)

	RegisterGRPCCodec(Options{})
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	require.Equal(t, CodecName, c.Name())

	in := &user{ID: 9, Name: "rob"}
	data, err := c.Marshal(in)
	require.NoError(t, err)
	var out user
	require.NoError(t, c.Unmarshal(data, &out))
	require.Equal(t, *in, out)

	ts := timestamppb.New(time.Unix(100, 0))
	data, err = c.Marshal(ts)
	require.NoError(t, err)
	var back timestamppb.Timestamp
	require.NoError(t, c.Unmarshal(data, &back))
	require.True(t, proto.Equal(ts, &back))

	type undeclared struct{}
	_, err = c.Marshal(&undeclared{})
	require.ErrorIs(t, err, protocol.ErrUnrepresentableType)
	require.ErrorIs(t, c.Unmarshal([]byte{0x08}, &out), protocol.ErrTruncated)
}

func TestArgsKeepUnpackedEncoding(t *testing.T) {
	testlog.Start(t)

	r := NewRegistry(Options{})
	require.NoError(t, r.Add(Endpoint{Name: "Record", Input: Args[sampleArgs](), Output: Empty()}))
	s := schema.New(schema.Options{DefaultPackage: "svc"})
	bindings, err := r.Build(s)
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	md, err := s.LookupMessage("svc.RecordInput")
	require.NoError(t, err)
	require.False(t, md.Fields().ByName("samples").IsPacked())
	require.True(t, md.Fields().ByName("weights").IsPacked())

	data, err := bindings["Record"].EncodeInput(&sampleArgs{Samples: []int32{1, 2}, Weights: []int64{3, 4}})
	require.NoError(t, err)
	var samples, weights int
	for b := data; len(b) > 0; {
		num, typ, n := protowire.ConsumeField(b)
		require.Greater(t, n, 0)
		switch num {
		case 2:
			require.Equal(t, protowire.VarintType, typ)
			samples++
		case 3:
			require.Equal(t, protowire.BytesType, typ)
			weights++
		}
		b = b[n:]
	}
	require.Equal(t, 2, samples)
	require.Equal(t, 1, weights)
}
