package resp_test

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/eternalApril/moonkv/internal/resp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadInt(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr error
	}{
		{
			name:    "Valid positive",
			input:   ":1000\r\n",
			want:    1000,
			wantErr: nil,
		},
		{
			name:    "Valid positive with +",
			input:   ":+1230\r\n",
			want:    1230,
			wantErr: nil,
		},
		{
			name:    "Valid negative",
			input:   ":-15\r\n",
			want:    -15,
			wantErr: nil,
		},
		{
			name:    "Valid zero",
			input:   ":0\r\n",
			want:    0,
			wantErr: nil,
		},
		{
			name:    "Invalid ending",
			input:   ":1000\n",
			want:    0,
			wantErr: resp.ErrInvalidEnding,
		},
		{
			name:    "Not a number",
			input:   ":12a\r\n",
			want:    0,
			wantErr: resp.ErrFrame,
		},
		{
			name:    "Overflow",
			input:   ":9223372036854775808\r\n",
			want:    0,
			wantErr: resp.ErrFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := resp.NewDecoder(strings.NewReader(tt.input))

			val, err := r.Read()

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Read() expected error %v, got %v", tt.wantErr, err)
				}
				return
			}

			if err != nil {
				t.Errorf("Read() unexpected error %v", err)
			}

			if val.Type != resp.TypeInteger {
				t.Errorf("Read() type = %v, want %v", val.Type, resp.TypeInteger)
			}

			if val.Integer != tt.want {
				t.Errorf("Read() num = %v, want %v", val.Integer, tt.want)
			}
		})
	}
}

func TestDecoder_Read(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  resp.Value
	}{
		{"Simple String", "+OK\r\n", resp.MakeSimpleString("OK")},
		{"Empty Simple String", "+\r\n", resp.MakeSimpleString("")},
		{"Error", "-ERR boom\r\n", resp.MakeError("ERR boom")},
		{"Bulk String", "$5\r\nhello\r\n", resp.MakeBulkString("hello")},
		{"Bulk String Empty", "$0\r\n\r\n", resp.MakeBulkString("")},
		{"Bulk String with CRLF inside", "$4\r\na\r\nb\r\n", resp.MakeBulkString("a\r\nb")},
		{"Bulk String Null", "$-1\r\n", resp.MakeNilBulkString()},
		{"Array Null", "*-1\r\n", resp.MakeNilArray()},
		{"Array Empty", "*0\r\n", resp.MakeArray([]resp.Value{})},
		{
			"Command",
			"*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n",
			resp.MakeCommand("SET", "k", "v"),
		},
		{
			"Nested",
			"*2\r\n:1\r\n*2\r\n+inner\r\n$-1\r\n",
			resp.MakeArray([]resp.Value{
				resp.MakeInteger(1),
				resp.MakeArray([]resp.Value{resp.MakeSimpleString("inner"), resp.MakeNilBulkString()}),
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resp.NewDecoder(strings.NewReader(tt.input)).Read()
			require.NoError(t, err)
			assert.Truef(t, resp.Equal(tt.want, got), "got %+v, want %+v", got, tt.want)
		})
	}
}

func TestDecoder_FrameErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Unknown prefix", "?foo\r\n"},
		{"Inline command", "PING\r\n"},
		{"Bulk non-numeric length", "$abc\r\nabc\r\n"},
		{"Bulk negative length", "$-2\r\n"},
		{"Bulk missing terminator", "$3\r\nabcXY"},
		{"Bulk truncated payload", "$10\r\nabc"},
		{"Array truncated", "*2\r\n$1\r\na\r\n"},
		{"Array bad count", "*x\r\n"},
		{"Line without CR", "+OK\n"},
		{"Line truncated", "+OK"},
		{"Empty header", "$\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resp.NewDecoder(strings.NewReader(tt.input)).Read()
			require.Error(t, err)
			assert.ErrorIs(t, err, resp.ErrFrame)
			assert.NotErrorIs(t, err, io.EOF)
		})
	}
}

func TestDecoder_BulkLimit(t *testing.T) {
	d := resp.NewDecoder(strings.NewReader("$11\r\nhello world\r\n"))
	d.SetMaxBulkLen(10)

	_, err := d.Read()
	assert.ErrorIs(t, err, resp.ErrFrame)
}

func TestDecoder_NestingLimit(t *testing.T) {
	input := strings.Repeat("*1\r\n", 1000) + ":1\r\n"

	_, err := resp.NewDecoder(strings.NewReader(input)).Read()
	assert.ErrorIs(t, err, resp.ErrFrame)
}

func TestDecoder_CleanEOF(t *testing.T) {
	d := resp.NewDecoder(strings.NewReader("+PONG\r\n"))

	_, err := d.Read()
	require.NoError(t, err)

	_, err = d.Read()
	assert.ErrorIs(t, err, io.EOF)
	assert.NotErrorIs(t, err, resp.ErrFrame)
}

func TestDecoder_Sequence(t *testing.T) {
	input := "+a\r\n:2\r\n$1\r\nc\r\n"
	d := resp.NewDecoder(strings.NewReader(input))

	want := []resp.Value{resp.MakeSimpleString("a"), resp.MakeInteger(2), resp.MakeBulkString("c")}
	for _, w := range want {
		got, err := d.Read()
		require.NoError(t, err)
		assert.True(t, resp.Equal(w, got))
	}

	_, err := d.Read()
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_Fragmented(t *testing.T) {
	values := []resp.Value{
		resp.MakeCommand("SET", "key", "some value", "PX", "100"),
		resp.MakeArray([]resp.Value{
			resp.MakeInteger(-42),
			resp.MakeError("ERR x"),
			resp.MakeNilArray(),
			resp.MakeArray([]resp.Value{resp.MakeBulkString(strings.Repeat("z", 300))}),
		}),
	}

	var stream bytes.Buffer
	for _, v := range values {
		b, err := resp.Marshal(v)
		require.NoError(t, err)
		stream.Write(b)
	}

	whole := resp.NewDecoder(bytes.NewReader(stream.Bytes()))
	byteByByte := resp.NewDecoder(iotest.OneByteReader(bytes.NewReader(stream.Bytes())))

	for range values {
		a, err := whole.Read()
		require.NoError(t, err)
		b, err := byteByByte.Read()
		require.NoError(t, err)
		assert.True(t, resp.Equal(a, b))
	}

	_, err := byteByByte.Read()
	assert.Equal(t, io.EOF, err)
}

func TestRoundTrip(t *testing.T) {
	values := []resp.Value{
		resp.MakeSimpleString("OK"),
		resp.MakeError("ERR something"),
		resp.MakeInteger(0),
		resp.MakeInteger(-9223372036854775808),
		resp.MakeInteger(9223372036854775807),
		resp.MakeBulkString(""),
		resp.MakeBulkString("binary\x00\r\n\xff"),
		resp.MakeNilBulkString(),
		resp.MakeNilArray(),
		resp.MakeArray([]resp.Value{}),
		resp.MakeArray([]resp.Value{
			resp.MakeBulkString("a"),
			resp.MakeArray([]resp.Value{resp.MakeInteger(7), resp.MakeNilBulkString()}),
		}),
	}

	for _, v := range values {
		b, err := resp.Marshal(v)
		require.NoError(t, err)

		got, err := resp.NewDecoder(bytes.NewReader(b)).Read()
		require.NoError(t, err)
		assert.Truef(t, resp.Equal(v, got), "round trip of %q", b)
	}
}

func FuzzDecoder(f *testing.F) {
	f.Add([]byte("*2\r\n$4\r\nECHO\r\n$3\r\nhey\r\n"))
	f.Add([]byte(":-1\r\n"))
	f.Add([]byte("$-1\r\n"))

	f.Fuzz(func(t *testing.T, data []byte) {
		v, err := resp.NewDecoder(bytes.NewReader(data)).Read()
		if err != nil {
			return
		}

		b, err := resp.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal() failed: %v", err)
		}

		again, err := resp.NewDecoder(bytes.NewReader(b)).Read()
		if err != nil || !resp.Equal(v, again) {
			t.Errorf("re-decoding %q failed: %v", b, err)
		}
	})
}
