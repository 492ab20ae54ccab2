package server

import (
	"fmt"
	"slices"
	"time"

	"github.com/eternalApril/moonkv/internal/metrics"
	"github.com/eternalApril/moonkv/internal/resp"
	"github.com/eternalApril/moonkv/internal/storage"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// commandEntry is a registered command together with its arity.
// Arity includes the command name itself; a negative arity -N means at least N
type commandEntry struct {
	arity   int
	handler command
}

// Engine coordinates the execution of commands against the storage
type Engine struct {
	commands map[string]commandEntry // Registry of available commands, keyed by canonical uppercase name
	storage  storage.Storage         // Shared KV storage
	metrics  *metrics.Metrics        // nil when metrics are disabled
	logger   *zap.Logger
}

// NewEngine initializes the engine and registers the basic commands
func NewEngine(s storage.Storage, logger *zap.Logger) *Engine {
	engine := &Engine{
		commands: make(map[string]commandEntry),
		storage:  s,
		logger:   logger,
	}
	engine.registerBasicCommand()

	return engine
}

// SetMetrics enables command counters and latency histograms
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// register adds a new command to the engine. Names are matched exactly,
// so they must be registered in their canonical uppercase form
func (e *Engine) register(name string, arity int, cmd command) {
	e.commands[name] = commandEntry{arity: arity, handler: cmd}
}

// registerBasicCommand fills the registry with standard commands
func (e *Engine) registerBasicCommand() {
	e.register("PING", -1, commandFunc(ping))
	e.register("ECHO", 2, commandFunc(echo))
	e.register("SET", -3, commandFunc(set))
	e.register("GET", 2, commandFunc(get))
	e.register("INCR", 2, commandFunc(incr))
}

// Commands returns the registered command names in sorted order
func (e *Engine) Commands() []string {
	names := lo.Keys(e.commands)
	slices.Sort(names)
	return names
}

// Dispatch interprets a decoded request as a command and executes it.
// Malformed requests and unknown commands produce an error reply
func (e *Engine) Dispatch(request resp.Value) resp.Value {
	if request.Type != resp.TypeArray || request.IsNull || len(request.Array) == 0 {
		return resp.MakeError("ERR invalid request, expected array of bulk strings")
	}

	head := request.Array[0]
	if head.Type != resp.TypeBulkString || head.IsNull {
		return resp.MakeError("ERR invalid request, expected array of bulk strings")
	}

	return e.Execute(string(head.String), request.Array[1:])
}

// Execute finds the command by name and executes it with the passed arguments.
// If the command is not found, returns an error in the RESP format
func (e *Engine) Execute(name string, args []resp.Value) resp.Value {
	if e.logger.Core().Enabled(zap.DebugLevel) {
		// Log the command name and number of args
		e.logger.Debug("executing command",
			zap.String("cmd", name),
			zap.Int("args_count", len(args)),
		)
	}

	start := time.Now()

	cmd, ok := e.commands[name]
	if !ok {
		e.metrics.ObserveCommand("unknown", time.Since(start))
		return resp.MakeError(fmt.Sprintf("ERR unknown command '%s'", name))
	}

	if !cmd.acceptsArgs(len(args)) {
		e.metrics.ObserveCommand(name, time.Since(start))
		return resp.MakeErrorWrongNumberOfArguments(name)
	}

	ctx := &commandContext{
		args:    args,
		storage: e.storage,
	}

	res := cmd.handler.execute(ctx)

	e.metrics.ObserveCommand(name, time.Since(start))

	return res
}

// acceptsArgs checks n arguments, not counting the command name, against the arity
func (c commandEntry) acceptsArgs(n int) bool {
	if c.arity < 0 {
		return n+1 >= -c.arity
	}
	return n+1 == c.arity
}
