package dispatch

import (
	"testing"

	"github.com/rzbill/relay/internal/broker"
	"github.com/stretchr/testify/require"
)

func TestFilterMatch(t *testing.T) {
	cases := []struct {
		expr    string
		payload string
		want    bool
	}{
		{"", "anything", true},
		{`text.startsWith("ab")`, "abc", true},
		{`text.startsWith("ab")`, "xbc", false},
		{`size > 3`, "abcd", true},
		{`json.n > 1`, `{"n": 2}`, true},
		{`json.n > 1`, `not json`, false},
		{`topic == "t"`, "x", true},
		{`ts_ms <= now_ms`, "x", true},
		{`"x"`, "x", false},
	}
	for _, tc := range cases {
		f, err := NewFilter(tc.expr)
		require.NoError(t, err, "compile %q", tc.expr)
		got := f.Match("t", broker.Message{Payload: []byte(tc.payload), Timestamp: 1})
		require.Equal(t, tc.want, got, "%q on %q", tc.expr, tc.payload)
	}
}

func TestFilterEnabled(t *testing.T) {
	var zero Filter
	require.False(t, zero.Enabled())
	require.True(t, zero.Match("t", broker.Message{}), "zero filter passes everything")

	blank, err := NewFilter("   ")
	require.NoError(t, err)
	require.False(t, blank.Enabled())

	f, err := NewFilter(`size > 0`)
	require.NoError(t, err)
	require.True(t, f.Enabled())
}

func TestFilterCompileError(t *testing.T) {
	_, err := NewFilter("unknown_var > 1")
	require.Error(t, err)
}
