package resp_test

import (
	"testing"

	"github.com/eternalApril/moonkv/internal/resp"
	"github.com/stretchr/testify/assert"
)

func TestValue_Text(t *testing.T) {
	tests := []struct {
		name   string
		input  resp.Value
		want   string
		wantOk bool
	}{
		{"bulk string", resp.MakeBulkString("abc"), "abc", true},
		{"simple string", resp.MakeSimpleString("OK"), "OK", true},
		{"empty bulk", resp.MakeBulkString(""), "", true},
		{"null bulk", resp.MakeNilBulkString(), "", false},
		{"integer", resp.MakeInteger(5), "", false},
		{"error", resp.MakeError("ERR x"), "", false},
		{"array", resp.MakeArray(nil), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.input.Text()
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValue_IsNil(t *testing.T) {
	assert.True(t, resp.MakeNilBulkString().IsNil())
	assert.True(t, resp.MakeNilArray().IsNil())
	assert.False(t, resp.MakeBulkString("").IsNil())
	assert.False(t, resp.MakeArray([]resp.Value{}).IsNil())
}

func TestValue_CloneSharesNoMemory(t *testing.T) {
	orig := resp.MakeArray([]resp.Value{
		resp.MakeBulkString("abc"),
		resp.MakeArray([]resp.Value{resp.MakeSimpleString("nested")}),
	})

	c := orig.Clone()
	assert.True(t, resp.Equal(orig, c))

	c.Array[0].String[0] = 'X'
	c.Array[1].Array[0].String[0] = 'Y'

	assert.Equal(t, "abc", string(orig.Array[0].String))
	assert.Equal(t, "nested", string(orig.Array[1].Array[0].String))
}

func TestEqual(t *testing.T) {
	assert.True(t, resp.Equal(resp.MakeInteger(1), resp.MakeInteger(1)))
	assert.False(t, resp.Equal(resp.MakeInteger(1), resp.MakeInteger(2)))
	assert.False(t, resp.Equal(resp.MakeBulkString("1"), resp.MakeSimpleString("1")))
	assert.False(t, resp.Equal(resp.MakeBulkString(""), resp.MakeNilBulkString()))
	assert.True(t, resp.Equal(resp.MakeNilArray(), resp.MakeNilArray()))
	assert.False(t, resp.Equal(
		resp.MakeArray([]resp.Value{resp.MakeInteger(1)}),
		resp.MakeArray([]resp.Value{resp.MakeInteger(1), resp.MakeInteger(2)}),
	))
}
