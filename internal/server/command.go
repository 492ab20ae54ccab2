package server

import (
	"github.com/eternalApril/moonkv/internal/resp"
	"github.com/eternalApril/moonkv/internal/storage"
)

// commandContext carries one request into a command
type commandContext struct {
	args    []resp.Value
	storage storage.Storage
}

type command interface {
	execute(ctx *commandContext) resp.Value
}

type commandFunc func(ctx *commandContext) resp.Value

func (c commandFunc) execute(ctx *commandContext) resp.Value {
	return c(ctx)
}
