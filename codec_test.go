package xexchange

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec_EncodeStateChanged(t *testing.T) {
	env, err := BuildEnvelope("conn-xyz", "device", "state.changed", scenarioTime,
		NewData().Set("id", 1).Set("value", 42))
	require.NoError(t, err)

	b, err := JSONCodec{}.Encode(env)
	require.NoError(t, err)
	assert.Equal(t,
		`{"sender_id":"conn-xyz","origin":"device","routing_key":"state.changed","created":"2024-01-01T00:00:00Z","data":{"id":1,"value":42}}`,
		string(b))
}

func TestBuildEnvelope_NilDataSkipsNormalize(t *testing.T) {
	calls := 0
	orig := normalize
	normalize = func(d *Data) (map[string]any, error) {
		calls++
		return orig(d)
	}
	t.Cleanup(func() { normalize = orig })

	env, err := BuildEnvelope("conn-xyz", "device", "state.changed", scenarioTime, nil)
	require.NoError(t, err)
	assert.Zero(t, calls)

	b, err := JSONCodec{}.Encode(env)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"data":null`)

	_, err = BuildEnvelope("conn-xyz", "device", "state.changed", scenarioTime, NewData())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestJSONCodec_RoundTripFlattensNestedContainers(t *testing.T) {
	data := NewData().
		Set("id", 1).
		Set("nested", NewData().
			Set("a", "x").
			Set("deep", map[string]any{"b": NewData().Set("c", 2.5)})).
		Set("list", []any{1, NewData().Set("k", "v")}).
		Set("tags", map[string]string{"t": "1"}).
		Set("none", nil)

	env, err := BuildEnvelope("sender", "device", "state.changed", scenarioTime, data)
	require.NoError(t, err)
	require.IsType(t, map[string]any{}, env.Data["nested"])
	require.IsType(t, map[string]any{}, env.Data["nested"].(map[string]any)["deep"].(map[string]any)["b"])

	b, err := JSONCodec{}.Encode(env)
	require.NoError(t, err)

	got, err := JSONCodec{}.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, "sender", got.SenderID)
	assert.Equal(t, "device", got.Origin)
	assert.Equal(t, "state.changed", got.RoutingKey)
	assert.True(t, scenarioTime.Equal(got.Created))
	assert.Equal(t, map[string]any{
		"id": json.Number("1"),
		"nested": map[string]any{
			"a":    "x",
			"deep": map[string]any{"b": map[string]any{"c": json.Number("2.5")}},
		},
		"list": []any{json.Number("1"), map[string]any{"k": "v"}},
		"tags": map[string]any{"t": "1"},
		"none": nil,
	}, got.Data)
}

func TestJSONCodec_LeavesSlashesAndHTMLUnescaped(t *testing.T) {
	env, err := BuildEnvelope("s", "o", "r", scenarioTime, NewData().Set("url", "http://a/b?x=<y>&z"))
	require.NoError(t, err)
	b, err := JSONCodec{}.Encode(env)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"url":"http://a/b?x=<y>&z"`)
}

func TestJSONCodec_DecodeRejectsBadTimestamp(t *testing.T) {
	_, err := JSONCodec{}.Decode([]byte(`{"sender_id":"s","origin":"o","routing_key":"r","created":"yesterday","data":null}`))
	require.Error(t, err)

	_, err = JSONCodec{}.Decode([]byte(`{not json`))
	require.Error(t, err)
}

func TestBuildEnvelope_EncodingErrors(t *testing.T) {
	selfData := NewData()
	selfData.Set("self", selfData)

	// a value copy shares the backing map, so this is still a cycle
	valueCycle := NewData()
	valueCycle.Set("self", nil)
	valueCycle.Set("self", *valueCycle)

	selfMap := map[string]any{}
	selfMap["m"] = selfMap

	selfSlice := make([]any, 1)
	selfSlice[0] = selfSlice

	cases := []struct {
		name string
		data *Data
		want error
		path string
	}{
		{"nan", NewData().Set("v", math.NaN()), ErrNonFiniteNumber, "data.v"},
		{"inf", NewData().Set("v", NewData().Set("w", math.Inf(1))), ErrNonFiniteNumber, "data.v.w"},
		{"float32 inf", NewData().Set("v", float32(math.Inf(-1))), ErrNonFiniteNumber, "data.v"},
		{"chan", NewData().Set("c", make(chan int)), ErrUnsupportedValue, "data.c"},
		{"func", NewData().Set("f", func() {}), ErrUnsupportedValue, "data.f"},
		{"complex", NewData().Set("z", complex(1, 2)), ErrUnsupportedValue, "data.z"},
		{"int keys", NewData().Set("m", map[int]string{1: "a"}), ErrUnsupportedValue, "data.m"},
		{"list item", NewData().Set("l", []any{1, math.NaN()}), ErrNonFiniteNumber, "data.l[1]"},
		{"cyclic data", selfData, ErrCyclicValue, "data.self"},
		{"cyclic data copy", valueCycle, ErrCyclicValue, "data.self"},
		{"cyclic map", NewData().Set("m", selfMap), ErrCyclicValue, "data.m.m"},
		{"cyclic slice", NewData().Set("s", selfSlice), ErrCyclicValue, "data.s[0]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildEnvelope("s", "o", "r", scenarioTime, tc.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEncoding)
			assert.ErrorIs(t, err, tc.want)

			var ee *EncodingError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tc.path, ee.Path)
		})
	}
}

func TestNormalize_SharedContainerIsNotACycle(t *testing.T) {
	shared := NewData().Set("k", "v")
	list := []any{1, 2}
	m, err := Normalize(NewData().Set("a", shared).Set("b", shared).Set("x", list).Set("y", list))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, m["a"])
	assert.Equal(t, map[string]any{"k": "v"}, m["b"])
	assert.Equal(t, []any{1, 2}, m["y"])
}

func TestNormalize_NamedAndPointerTypes(t *testing.T) {
	type labels map[string]int
	type point struct {
		X int `json:"x"`
	}
	n := 7
	m, err := Normalize(NewData().
		Set("labels", labels{"a": 1}).
		Set("ptr", &n).
		Set("nilptr", (*int)(nil)).
		Set("point", point{X: 3}).
		Set("arr", [2]string{"p", "q"}).
		Set("bytes", []byte("hi")).
		Set("value", *NewData().Set("z", true)))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"a": 1}, m["labels"])
	assert.Equal(t, 7, m["ptr"])
	assert.Nil(t, m["nilptr"])
	assert.Equal(t, point{X: 3}, m["point"])
	assert.Equal(t, []any{"p", "q"}, m["arr"])
	assert.Equal(t, []byte("hi"), m["bytes"])
	assert.Equal(t, map[string]any{"z": true}, m["value"])
}

func TestNewCodec_Registry(t *testing.T) {
	c, err := NewCodec("json")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	_, err = NewCodec("msgpack")
	require.Error(t, err)

	require.Error(t, RegisterCodec("", func() Codec { return JSONCodec{} }))
	require.Error(t, RegisterCodec("x", nil))
}

func TestJSONIterCodec_MatchesJSONCodec(t *testing.T) {
	data := NewData().
		Set("id", 1).
		Set("url", "https://example.com/?a=1&b=<2>").
		Set("nested", NewData().Set("z", "last").Set("a", []any{true, nil, "x"}))
	env, err := BuildEnvelope("conn-xyz", "device", "state.changed", scenarioTime, data)
	require.NoError(t, err)

	want, err := JSONCodec{}.Encode(env)
	require.NoError(t, err)
	got, err := JSONIterCodec{}.Encode(env)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	back, err := JSONIterCodec{}.Decode(got)
	require.NoError(t, err)
	assert.Equal(t, "conn-xyz", back.SenderID)
	assert.Equal(t, scenarioTime, back.Created.UTC())
	assert.Equal(t, json.Number("1"), back.Data["id"])

	c, err := NewCodec("jsoniter")
	require.NoError(t, err)
	assert.Equal(t, "jsoniter", c.Name())
}
