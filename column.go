package sekai

import (
	"reflect"
	"unsafe"
)

// column is the storage of one data-bearing id in a table. The backing
// array is a real Go slice so pointer fields stay visible to the collector.
type column struct {
	id    ID
	ti    *TypeInfo
	data  reflect.Value
	base  unsafe.Pointer
	count int
	dirty uint32
}

func newColumn(id ID, ti *TypeInfo) column {
	return column{id: id, ti: ti}
}

func (c *column) capacity() int {
	if !c.data.IsValid() {
		return 0
	}
	return c.data.Len()
}

// ptr returns the address of the element at row.
func (c *column) ptr(row int) unsafe.Pointer {
	return unsafe.Add(c.base, uintptr(row)*c.ti.Size)
}

// reserve makes room for at least n elements.
func (c *column) reserve(n int) {
	if n <= c.capacity() {
		return
	}
	newCap := growCapacity(c.capacity(), n)
	data := reflect.MakeSlice(c.ti.sliceType, newCap, newCap)
	if c.count > 0 {
		reflect.Copy(data, c.data.Slice(0, c.count))
	}
	c.data = data
	c.base = data.UnsafePointer()
}

// appendRows grows the column by n uninitialized (zeroed) elements and
// returns the first new row.
func (c *column) appendRows(n int) int {
	row := c.count
	c.reserve(c.count + n)
	c.count += n
	return row
}

// removeLast drops the last element, zeroing it so references are released.
func (c *column) removeLast() {
	c.count--
	c.ti.clear(c.ptr(c.count), 1)
}

// reset drops all elements.
func (c *column) reset() {
	if c.count > 0 {
		c.ti.clear(c.base, c.count)
	}
	c.count = 0
}

// toggleColumn tracks the enabled state of a component per row.
type toggleColumn struct {
	id   ID // component id without the toggle role
	bits bitset
}
