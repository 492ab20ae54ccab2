package server

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/eternalApril/moonkv/internal/resp"
	"github.com/eternalApril/moonkv/internal/storage"
)

var (
	errNotInteger = errors.New("ERR value is not an integer or out of range")
	errOverflow   = errors.New("ERR increment or decrement would overflow")
)

var (
	replyOK           = resp.MakeSimpleString("OK")
	replySyntaxError  = resp.MakeError("ERR syntax error")
	replyWrongArgType = resp.MakeError("ERR wrong argument type")

	replyInvalidExpire = resp.MakeError("ERR invalid expire time in 'set' command")
)

// ping returns PONG, arguments are ignored
func ping(_ *commandContext) resp.Value {
	return resp.MakeSimpleString("PONG")
}

// echo returns its single argument unchanged
func echo(ctx *commandContext) resp.Value {
	return ctx.args[0]
}

// set stores a value. Syntax: SET key value [PX milliseconds | EX seconds]
func set(ctx *commandContext) resp.Value {
	key, ok := ctx.args[0].Text()
	if !ok {
		return replyWrongArgType
	}

	var options storage.SetOptions

	for i := 2; i < len(ctx.args); i++ {
		opt, ok := ctx.args[i].Text()
		if !ok {
			return replyWrongArgType
		}

		var unit time.Duration
		switch strings.ToUpper(opt) {
		case "PX":
			unit = time.Millisecond
		case "EX":
			unit = time.Second
		default:
			return replySyntaxError
		}

		if options.HasTTL || i+1 >= len(ctx.args) {
			return replySyntaxError
		}
		i++

		text, ok := ctx.args[i].Text()
		if !ok {
			return replyWrongArgType
		}

		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil || n < 0 {
			return resp.MakeError(errNotInteger.Error())
		}

		// the deadline is kept in unix nanoseconds and must not pass MaxInt64
		if n > (math.MaxInt64-time.Now().UnixNano())/int64(unit) {
			return replyInvalidExpire
		}

		options.TTL = time.Duration(n) * unit
		options.HasTTL = true
	}

	ctx.storage.Set(key, ctx.args[1], options)

	return replyOK
}

// get returns the stored value or a null bulk string. Integers written by
// INCR are returned as their decimal text
func get(ctx *commandContext) resp.Value {
	key, ok := ctx.args[0].Text()
	if !ok {
		return replyWrongArgType
	}

	val, ok := ctx.storage.Get(key)
	if !ok {
		return resp.MakeNilBulkString()
	}

	if val.Type == resp.TypeInteger {
		return resp.MakeIntegerText(val.Integer)
	}

	return val
}

// incr adds one to the integer stored at key, starting from zero for a missing key
func incr(ctx *commandContext) resp.Value {
	key, ok := ctx.args[0].Text()
	if !ok {
		return replyWrongArgType
	}

	val, err := ctx.storage.Update(key, func(current resp.Value, exists bool) (resp.Value, error) {
		if !exists {
			return resp.MakeInteger(1), nil
		}

		n, err := integerOf(current)
		if err != nil {
			return resp.Value{}, err
		}

		if n == math.MaxInt64 {
			return resp.Value{}, errOverflow
		}

		return resp.MakeInteger(n + 1), nil
	})
	if err != nil {
		return resp.MakeError(err.Error())
	}

	return val
}

// integerOf reads a stored value as a base-10 signed 64-bit integer
func integerOf(v resp.Value) (int64, error) {
	if v.Type == resp.TypeInteger {
		return v.Integer, nil
	}

	text, ok := v.Text()
	if !ok {
		return 0, errNotInteger
	}

	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, errNotInteger
	}

	return n, nil
}
