package sekai

import (
	"fmt"
	"strings"
)

type opKind uint8

const (
	opAnd      opKind = iota // select or with, depending on whether src is written
	opUp                     // match through a traversable relationship
	opSelfUp                 // match on the source, then up
	opTriv                   // all terms are plain ids on $this
	opCache                  // iterate a query cache
	opIsCache                // iterate a cache of a trivial query
	opAndFrom                // all ids of an entity's type
	opOrFrom                 // any id of an entity's type
	opNotFrom                // none of the ids of an entity's type
	opOr                     // start of an or chain
	opNot                    // start of a not block
	opOptional               // start of an optional block
	opEnd                    // end of a block
	opEach                   // bind an entity var from the rows of a table var
	opLookup                 // bind a var to a named child of another var
	opSetThis                // make an entity var the result range
	opSetVars                // copy variable values into field sources
	opSetFixed               // set fields with fixed sources once
	opSetIds                 // set static field ids once
	opToggle                 // narrow $this to rows where a component is enabled
	opSubtypes               // bind a var to an id and each IsA subtype
	opAll                    // every queryable table
	opNothing                // never matches
	opYield
)

var opNames = [...]string{
	opAnd:      "and",
	opUp:       "up",
	opSelfUp:   "selfup",
	opTriv:     "triv",
	opCache:    "cache",
	opIsCache:  "iscache",
	opAndFrom:  "andfrom",
	opOrFrom:   "orfrom",
	opNotFrom:  "notfrom",
	opOr:       "or",
	opNot:      "not",
	opOptional: "option",
	opEnd:      "end",
	opEach:     "each",
	opLookup:   "lookup",
	opSetThis:  "setthis",
	opSetVars:  "setvars",
	opSetFixed: "setfix",
	opSetIds:   "setids",
	opToggle:   "toggle",
	opSubtypes: "subtypes",
	opAll:      "all",
	opNothing:  "nothing",
	opYield:    "yield",
}

func (k opKind) String() string {
	if int(k) < len(opNames) {
		return opNames[k]
	}
	return fmt.Sprintf("op(%d)", k)
}

type opFlags uint8

const (
	opHasSecond opFlags = 1 << iota
	// opMatchAny yields a table once even if the pattern matches several ids.
	opMatchAny
	// opSrcWritten records that the source was bound when the op was
	// compiled. Only used for printing plans.
	opSrcWritten
)

// opRef is an op operand: a variable when v >= 0, otherwise a fixed entity
// (0 when absent).
type opRef struct {
	entity Entity
	v      int8
}

var noRef = opRef{v: -1}

func (r opRef) isVar() bool { return r.v >= 0 }

// queryOp is one instruction of a compiled query. prev and next are the
// ops to go to on failure and success, other is the end of a block.
type queryOp struct {
	kind   opKind
	flags  opFlags
	field  int8
	term   int16
	index  int16
	prev   int16
	next   int16
	other  int16
	src    opRef
	first  opRef
	second opRef
	trav   Entity
	// written is the set of variables the op binds.
	written uint64
}

func (q *Query) refString(r opRef) string {
	if r.v >= 0 {
		return "$" + q.vars[r.v].displayName()
	}
	if r.entity == 0 {
		return ""
	}
	return q.world.entityString(r.entity.Index())
}

// Plan returns a human readable listing of the compiled program.
func (q *Query) Plan() string {
	var b strings.Builder
	for i := range q.ops {
		op := &q.ops[i]
		name := op.kind.String()
		if op.kind == opAnd {
			if op.flags&opSrcWritten != 0 {
				name = "with"
			} else {
				name = "select"
			}
		}
		fmt.Fprintf(&b, "%2d. [%2d, %2d] %-9s", i, op.prev, op.next, name)
		if src := q.refString(op.src); src != "" {
			fmt.Fprintf(&b, " %s", src)
		}
		switch op.kind {
		case opAnd, opUp, opSelfUp, opAndFrom, opOrFrom, opNotFrom, opToggle, opSubtypes:
			if op.flags&opHasSecond != 0 {
				fmt.Fprintf(&b, " (%s, %s)", q.refString(op.first), q.refString(op.second))
			} else {
				fmt.Fprintf(&b, " (%s)", q.refString(op.first))
			}
			if op.trav != 0 {
				fmt.Fprintf(&b, " trav %s", q.world.entityString(op.trav.Index()))
			}
		case opEach, opLookup:
			fmt.Fprintf(&b, " -> %s", q.refString(op.first))
		case opNot, opOptional, opOr:
			fmt.Fprintf(&b, " end %d", op.other)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
