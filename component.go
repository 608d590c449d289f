package sekai

import (
	"fmt"
	"reflect"
	"strings"
	"unsafe"

	"go.uber.org/zap"
)

// TypeHooks are optional lifecycle callbacks for a component type. Columns
// fall back to typed Go copies when a hook is nil.
type TypeHooks struct {
	// Ctor initializes count elements at ptr. Defaults to zeroing.
	Ctor func(ptr unsafe.Pointer, count int)
	// Dtor releases count elements at ptr. Defaults to zeroing.
	Dtor func(ptr unsafe.Pointer, count int)
	// Move transfers count elements from src to dst, leaving src destructed.
	Move func(dst, src unsafe.Pointer, count int)
	// Copy duplicates count elements from src to dst.
	Copy func(dst, src unsafe.Pointer, count int)
	// OnAdd is called after a component was added to an entity.
	OnAdd func(w *World, e Entity, ptr unsafe.Pointer)
	// OnRemove is called before a component is removed from an entity.
	OnRemove func(w *World, e Entity, ptr unsafe.Pointer)
}

// TypeInfo describes the storage of a data-bearing id.
type TypeInfo struct {
	Component Entity
	Type      reflect.Type
	Size      uintptr
	Alignment uintptr
	Hooks     TypeHooks

	sliceType   reflect.Type
	pointerFree bool
}

func newTypeInfo(component Entity, typ reflect.Type) *TypeInfo {
	return &TypeInfo{
		Component:   component,
		Type:        typ,
		Size:        typ.Size(),
		Alignment:   uintptr(typ.Align()),
		sliceType:   reflect.SliceOf(typ),
		pointerFree: isPointerFree(typ),
	}
}

// RawType returns a Go type able to hold size bytes with the requested
// alignment. It backs components that are declared by size only, such as
// the ones described in scenario files.
func RawType(size, alignment uintptr) reflect.Type {
	switch {
	case alignment >= 8 && size%8 == 0:
		return reflect.ArrayOf(int(size/8), reflect.TypeFor[uint64]())
	case alignment >= 4 && size%4 == 0:
		return reflect.ArrayOf(int(size/4), reflect.TypeFor[uint32]())
	default:
		return reflect.ArrayOf(int(size), reflect.TypeFor[byte]())
	}
}

func isPointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return t.Len() == 0 || isPointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !isPointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (ti *TypeInfo) value(ptr unsafe.Pointer) reflect.Value {
	return reflect.NewAt(ti.Type, ptr).Elem()
}

func (ti *TypeInfo) ctor(ptr unsafe.Pointer, count int) {
	if ti.Hooks.Ctor != nil {
		ti.Hooks.Ctor(ptr, count)
		return
	}
	ti.clear(ptr, count)
}

func (ti *TypeInfo) dtor(ptr unsafe.Pointer, count int) {
	if ti.Hooks.Dtor != nil {
		ti.Hooks.Dtor(ptr, count)
		return
	}
	ti.clear(ptr, count)
}

// clear zeroes count elements. Pointer-carrying types go through reflect so
// the garbage collector sees the stores.
func (ti *TypeInfo) clear(ptr unsafe.Pointer, count int) {
	if ti.pointerFree {
		memClear(ptr, ti.Size*uintptr(count))
		return
	}
	for i := 0; i < count; i++ {
		ti.value(unsafe.Add(ptr, uintptr(i)*ti.Size)).SetZero()
	}
}

func (ti *TypeInfo) copy(dst, src unsafe.Pointer, count int) {
	if ti.Hooks.Copy != nil {
		ti.Hooks.Copy(dst, src, count)
		return
	}
	if ti.pointerFree {
		memCopy(dst, src, ti.Size*uintptr(count))
		return
	}
	for i := 0; i < count; i++ {
		off := uintptr(i) * ti.Size
		ti.value(unsafe.Add(dst, off)).Set(ti.value(unsafe.Add(src, off)))
	}
}

func (ti *TypeInfo) move(dst, src unsafe.Pointer, count int) {
	if ti.Hooks.Move != nil {
		ti.Hooks.Move(dst, src, count)
		return
	}
	ti.copy(dst, src, count)
	if !ti.pointerFree {
		ti.clear(src, count)
	}
}

// componentRegistry maps Go types to the component entities that represent
// them in a world.
type componentRegistry struct {
	types     map[reflect.Type]Entity
	typeInfos map[Entity]*TypeInfo
}

func (r *componentRegistry) init() {
	r.types = make(map[reflect.Type]Entity, 64)
	r.typeInfos = make(map[Entity]*TypeInfo, 64)
}

// RegisterComponent registers a component type and returns the entity that
// represents it. If the type is already registered, it returns the existing
// entity. Zero-sized types are registered as tags and get no storage.
//
// Parameters:
//   - w: The World to register the component in.
//
// Returns:
//   - The component entity, usable as an id in Add, Remove and query terms.
func RegisterComponent[T any](w *World) Entity {
	return w.registerType(reflect.TypeFor[T]())
}

// ComponentID returns the entity registered for T, or 0 if T has not been
// registered with RegisterComponent, Set or a query helper.
func ComponentID[T any](w *World) Entity {
	return w.components.types[reflect.TypeFor[T]()]
}

func (w *World) registerType(t reflect.Type) Entity {
	if e, ok := w.components.types[t]; ok {
		return e
	}
	e := w.NewEntity()
	w.components.types[t] = e
	if t.Size() != 0 {
		w.SetTypeInfo(e, newTypeInfo(e, t))
	}
	w.SetName(e, typeName(t))
	w.logger.Debug("component registered", zap.Stringer("type", t), zap.Stringer("entity", e))
	return e
}

// typeName is the entity name of a registered Go type. Names cannot contain
// the path separator.
func typeName(t reflect.Type) string {
	name := t.Name()
	if name == "" || strings.Contains(name, ".") {
		name = strings.ReplaceAll(t.String(), ".", "_")
	}
	return name
}

// SetTypeInfo attaches storage information to an entity so ids built from it
// carry data. It panics if the id is already stored in a table, as existing
// tables cannot grow columns.
func (w *World) SetTypeInfo(e Entity, ti *TypeInfo) {
	ecsAssert(w.entities.isAlive(e), CodeInvalidParameter, "entity %s is not alive", e)
	if ti != nil {
		ecsAssert(ti.Type != nil, CodeInvalidParameter, "type info for %s has no Go type", e)
		ecsAssert(ti.Type.Size() == ti.Size, CodeInvalidParameter,
			"type info for %s: size %d does not match %s", e, ti.Size, ti.Type)
		ti.Component = e
		if ti.sliceType == nil {
			ti.sliceType = reflect.SliceOf(ti.Type)
			ti.pointerFree = isPointerFree(ti.Type)
		}
	}
	for _, id := range []ID{ID(e), Pair(e, Wildcard)} {
		if idr := w.idRecordGet(id); idr != nil {
			ecsAssert(idr.cache.tableCount() == 0 && idr.cache.emptyCount() == 0, CodeInvalidOperation,
				"cannot change type of %s while it is in use", w.idString(ID(e)))
		}
	}
	w.components.typeInfos[e] = ti
	if idr := w.idRecordGet(ID(e)); idr != nil {
		idr.typeInfo = ti
	}
}

// TypeInfoOf returns the storage information of a component entity.
func (w *World) TypeInfoOf(e Entity) *TypeInfo {
	return w.components.typeInfos[e]
}

// typeInfoForID resolves the data type of an id. Pairs take the type of the
// relationship, or of the target if the relationship is a tag. IsA and
// ChildOf pairs never carry data.
func (w *World) typeInfoForID(id ID) *TypeInfo {
	if id.HasRole() {
		return nil
	}
	if !id.IsPair() {
		return w.components.typeInfos[id.Entity()]
	}
	first := w.entities.aliveAt(id.firstIndex())
	if first == 0 || isWildcardIndex(id.firstIndex()) || first == IsA || first == ChildOf {
		return nil
	}
	if ti := w.components.typeInfos[first]; ti != nil {
		return ti
	}
	second := w.entities.aliveAt(id.secondIndex())
	if second == 0 || isWildcardIndex(id.secondIndex()) {
		return nil
	}
	return w.components.typeInfos[second]
}

func (ti *TypeInfo) String() string {
	if ti == nil {
		return "<tag>"
	}
	return fmt.Sprintf("%s(size=%d)", ti.Type, ti.Size)
}
