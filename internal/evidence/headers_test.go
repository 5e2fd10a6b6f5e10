package evidence

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderValueSingleRoundTrip(t *testing.T) {
	h := SingleHeader("text/html")

	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `"text/html"`, string(data))

	var back HeaderValue
	require.NoError(t, json.Unmarshal(data, &back))
	assert.False(t, back.IsMulti())
	assert.Equal(t, "text/html", back.First())
}

func TestHeaderValueMultiRoundTrip(t *testing.T) {
	h := MultiHeader([]string{"a=1", "b=2"})

	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `["a=1","b=2"]`, string(data))

	var back HeaderValue
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.IsMulti())
	assert.Equal(t, []string{"a=1", "b=2"}, back.Values())
}

func TestHeaderValueSingleElementListStaysList(t *testing.T) {
	var h HeaderValue
	require.NoError(t, json.Unmarshal([]byte(`["only"]`), &h))
	assert.True(t, h.IsMulti())

	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `["only"]`, string(data))
}

func TestHeaderValueRejectsOtherShapes(t *testing.T) {
	var h HeaderValue
	assert.Error(t, json.Unmarshal([]byte(`42`), &h))
	assert.Error(t, json.Unmarshal([]byte(`{"k":"v"}`), &h))
}

func TestHeadersFromHTTP(t *testing.T) {
	src := http.Header{}
	src.Set("Content-Type", "text/html")
	src.Add("Set-Cookie", "a=1")
	src.Add("Set-Cookie", "b=2")

	m := HeadersFromHTTP(src)

	ct := m["Content-Type"]
	assert.False(t, ct.IsMulti())
	assert.Equal(t, "text/html", ct.First())

	sc := m["Set-Cookie"]
	assert.True(t, sc.IsMulti())
	assert.Equal(t, []string{"a=1", "b=2"}, sc.Values())
}

func TestHeaderMapJSONRoundTrip(t *testing.T) {
	m := HeaderMap{
		"Content-Type": SingleHeader("text/html"),
		"Set-Cookie":   MultiHeader([]string{"a=1", "b=2"}),
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var back HeaderMap
	require.NoError(t, json.Unmarshal(data, &back))
	assert.False(t, back["Content-Type"].IsMulti())
	assert.True(t, back["Set-Cookie"].IsMulti())
	assert.Equal(t, []string{"a=1", "b=2"}, back["Set-Cookie"].Values())
}
