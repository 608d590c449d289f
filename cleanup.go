package sekai

import "go.uber.org/zap"

func (w *World) tablesWith(id ID) []*Table {
	idr := w.idRecordGet(id)
	if idr == nil {
		return nil
	}
	tables := make([]*Table, 0, idr.cache.tableCount()+idr.cache.emptyCount())
	idr.Tables(true, func(t *Table, _ *TableRecord) bool {
		tables = append(tables, t)
		return true
	})
	return tables
}

// RemoveAll removes id (which may be a wildcard) from every entity that has
// it. Each table holding the id is merged into the table without it and then
// deleted.
func (w *World) RemoveAll(id ID) {
	ecsAssert(w.stage.depth == 0, CodeInvalidOperation, "RemoveAll while deferred")
	tables := w.tablesWith(id)
	for _, t := range tables {
		if t.freed {
			continue
		}
		dst, _ := w.tableTraverseRemove(t, id)
		w.tableMerge(dst, t)
		w.sanitize(dst)
	}
	for _, t := range tables {
		if !t.freed {
			w.tableFree(t)
		}
	}
	if len(tables) > 0 {
		w.logger.Debug("removed id from all entities",
			zap.String("id", w.idString(id)), zap.Int("tables", len(tables)))
	}
}

// DeleteWith deletes every entity that has id (which may be a wildcard),
// then deletes the tables that held them.
func (w *World) DeleteWith(id ID) {
	ecsAssert(w.stage.depth == 0, CodeInvalidOperation, "DeleteWith while deferred")
	tables := w.tablesWith(id)
	for _, t := range tables {
		if t.freed {
			continue
		}
		// Entities that other ids refer to need the full cleanup of Delete.
		var referenced []Entity
		for _, e := range t.entities {
			if meta := w.entities.get(e); meta != nil && meta.row&(rowIsTarget|rowIsID) != 0 {
				referenced = append(referenced, e)
			}
		}
		for _, e := range referenced {
			w.Delete(e)
		}
		if !t.freed {
			w.tableClear(t)
		}
	}
	for _, t := range tables {
		if !t.freed {
			w.tableFree(t)
		}
	}
	if len(tables) > 0 {
		w.logger.Debug("deleted entities with id",
			zap.String("id", w.idString(id)), zap.Int("tables", len(tables)))
	}
}

// DeleteEmptyTables deletes every empty, unlocked table except the root and
// returns how many were deleted.
func (w *World) DeleteEmptyTables() int {
	var empty []*Table
	w.Tables(func(t *Table) bool {
		if t != w.tables.root && t.Count() == 0 && !t.IsLocked() {
			empty = append(empty, t)
		}
		return true
	})
	for _, t := range empty {
		if !t.freed {
			w.tableFree(t)
		}
	}
	if len(empty) > 0 {
		w.logger.Debug("deleted empty tables", zap.Int("count", len(empty)))
	}
	return len(empty)
}
