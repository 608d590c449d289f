package sekai

import (
	"sync"

	"go.uber.org/zap"
)

type commandKind uint8

const (
	cmdAdd commandKind = iota
	cmdRemove
	cmdSet
	cmdDelete
	cmdEnable
)

func (k commandKind) String() string {
	switch k {
	case cmdAdd:
		return "add"
	case cmdRemove:
		return "remove"
	case cmdSet:
		return "set"
	case cmdDelete:
		return "delete"
	case cmdEnable:
		return "enable"
	}
	return "unknown"
}

// command is a structural change recorded while the world is deferred.
type command struct {
	kind   commandKind
	entity Entity
	id     ID
	enable bool
	set    func(w *World)
}

// commandQueue collects commands between DeferBegin and DeferEnd.
type commandQueue struct {
	depth int
	mu    sync.Mutex
	cmds  []command
}

// DeferBegin starts queueing structural changes. Calls nest.
func (w *World) DeferBegin() {
	w.stage.depth++
}

// DeferEnd ends a DeferBegin. When the outermost call ends, queued commands
// are applied in the order they were issued.
func (w *World) DeferEnd() {
	ecsAssert(w.stage.depth > 0, CodeInvalidOperation, "DeferEnd without DeferBegin")
	w.stage.depth--
	if w.stage.depth == 0 {
		w.flushCommands()
	}
}

// IsDeferred reports whether structural changes are being queued.
func (w *World) IsDeferred() bool { return w.stage.depth > 0 }

// enqueue may be called from EachParallel workers.
func (w *World) enqueue(c command) {
	w.stage.mu.Lock()
	w.stage.cmds = append(w.stage.cmds, c)
	w.stage.mu.Unlock()
}

func (w *World) flushCommands() {
	for len(w.stage.cmds) > 0 {
		batch := w.stage.cmds
		w.stage.cmds = nil
		for _, c := range batch {
			if err := w.apply(c); err != nil {
				w.logger.Warn("deferred command skipped",
					zap.Stringer("kind", c.kind),
					zap.Stringer("entity", c.entity),
					zap.Error(err))
			}
		}
	}
	if w.config.World.AutoDeleteEmptyTables {
		w.DeleteEmptyTables()
	}
}

func (w *World) apply(c command) error {
	if !w.entities.isAlive(c.entity) {
		return ErrStaleEntity
	}
	switch c.kind {
	case cmdAdd:
		w.Add(c.entity, c.id)
	case cmdRemove:
		w.Remove(c.entity, c.id)
	case cmdSet:
		c.set(w)
	case cmdDelete:
		w.Delete(c.entity)
	case cmdEnable:
		w.Enable(c.entity, c.id.Entity(), c.enable)
	}
	return nil
}
