package sekai

import (
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// storageTable is the column layout shared by all tables that carry the
// same data ids. Tables that only differ in tags point to the same storage
// table.
type storageTable struct {
	ids   []ID
	hash  uint64
	refs  int32
	types []*TypeInfo
}

// IDs returns the data ids of the storage table.
func (s *storageTable) IDs() []ID { return s.ids }

// hashType hashes an id list with xxhash.
func hashType(ids []ID) uint64 {
	var buf [8]byte
	d := xxhash.New()
	for _, id := range ids {
		binary.LittleEndian.PutUint64(buf[:], uint64(id))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

func (w *World) storageEnsure(ids []ID) *storageTable {
	h := hashType(ids)
	for _, s := range w.storages[h] {
		if slices.Equal(s.ids, ids) {
			return s
		}
	}
	s := &storageTable{ids: slices.Clone(ids), hash: h}
	for _, id := range ids {
		s.types = append(s.types, w.typeInfoForID(id))
	}
	w.storages[h] = append(w.storages[h], s)
	w.info.StorageTableCount++
	return s
}

func (w *World) storageRelease(s *storageTable) {
	if s == nil {
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}
	bucket := slices.DeleteFunc(w.storages[s.hash], func(o *storageTable) bool { return o == s })
	if len(bucket) == 0 {
		delete(w.storages, s.hash)
	} else {
		w.storages[s.hash] = bucket
	}
	w.info.StorageTableCount--
}

// StorageIDs returns the data ids shared by tables with the same layout.
func (t *Table) StorageIDs() []ID {
	if t.storage == nil {
		return nil
	}
	return t.storage.ids
}

// SharesStorage reports whether two tables use the same column layout.
func (t *Table) SharesStorage(o *Table) bool {
	return t.storage != nil && t.storage == o.storage
}
