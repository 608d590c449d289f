package sekai

import (
	"slices"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

const (
	maxQueryFields = 32
	maxQueryVars   = 64
)

type varKind uint8

const (
	varEntity varKind = iota
	varTable
)

// queryVar is a variable slot. Entity variables hold one entity, table
// variables a table and a row range.
type queryVar struct {
	name   string
	kind   varKind
	base   int8 // variable a lookup is relative to, or -1
	lookup string
}

func (v *queryVar) displayName() string {
	if v.kind == varTable {
		return "[" + v.name + "]"
	}
	return v.name
}

// queryField is the static part of an iterator field.
type queryField struct {
	id     ID
	src    Entity
	srcVar int8
	term   int
	oper   Oper
	inout  InOutKind
}

func bit(v int8) uint64 { return uint64(1) << uint(v) }

type compiler struct {
	w       *World
	q       *Query
	written uint64
	// condVars are variables that are only bound inside optional blocks.
	condVars uint64
	errs     error
	tooMany  bool
}

func (c *compiler) fail(code QueryErrorCode, term int, format string, args ...any) {
	c.errs = multierr.Append(c.errs, queryErrorf(code, term, format, args...))
}

func (c *compiler) compile(terms []Term) {
	q := c.q
	if len(terms) == 0 {
		c.fail(ErrCodeInvalidTerm, -1, "query has no terms")
		return
	}
	q.terms = slices.Clone(terms)
	for i := range q.terms {
		c.normalize(i, &q.terms[i])
	}
	if c.errs != nil {
		return
	}
	c.checkOperators()
	if c.errs != nil {
		return
	}
	c.buildFields()
	if len(q.fields) > maxQueryFields {
		c.fail(ErrCodeTooManyTerms, -1, "query has %d fields, at most %d are supported", len(q.fields), maxQueryFields)
		return
	}

	for i := range q.terms {
		if q.terms[i].Src.isThis() {
			q.thisVar = c.ensureVar("this", varTable)
			break
		}
	}

	if c.isTrivial() {
		c.emit(queryOp{kind: opTriv, field: -1, src: opRef{v: q.thisVar}, first: noRef, second: noRef, written: bit(q.thisVar)})
	} else {
		c.compilePlan()
	}
	c.emit(queryOp{kind: opYield, field: -1, src: noRef, first: noRef, second: noRef})
	if len(q.vars) > maxQueryVars && !c.tooMany {
		c.fail(ErrCodeTooManyVariables, -1, "query has %d variables, at most %d are supported", len(q.vars), maxQueryVars)
	}
	linkOps(q.ops)
}

func (c *compiler) compilePlan() {
	q := c.q
	var needIds, needFixed bool
	for i := range q.fields {
		if q.fields[i].oper != And && q.fields[i].oper != Or {
			needIds = true
		}
		if q.fields[i].src != 0 {
			needFixed = true
		}
	}
	if needIds {
		c.emit(queryOp{kind: opSetIds, field: -1, src: noRef, first: noRef, second: noRef})
	}
	if needFixed {
		c.emit(queryOp{kind: opSetFixed, field: -1, src: noRef, first: noRef, second: noRef})
	}

	terms := q.terms
	for i := 0; i < len(terms); {
		if terms[i].Oper == Or {
			j := i
			for terms[j].Oper == Or {
				j++
			}
			c.compileOr(i, j)
			i = j + 1
			continue
		}
		c.compileTerm(i, &terms[i])
		i++
	}

	if ev := c.findVar("this", varEntity); ev >= 0 {
		q.thisEntityVar = ev
		if c.isWritten(ev) {
			c.emit(queryOp{kind: opSetThis, field: -1, src: opRef{v: ev}, first: noRef, second: noRef})
			q.setThis = true
		}
	}

	needVars := false
	for i := range q.fields {
		qf := &q.fields[i]
		src := q.terms[qf.term].Src
		if !src.isVar() || src.isThis() {
			continue
		}
		if v := c.findVar(src.Name, varEntity); v >= 0 {
			qf.srcVar = v
			needVars = true
		}
	}
	if needVars {
		c.emit(queryOp{kind: opSetVars, field: -1, src: noRef, first: noRef, second: noRef})
	}
}

// normalize resolves names and fills in defaults.
func (c *compiler) normalize(i int, t *Term) {
	w := c.w
	if t.ID != 0 {
		if t.First.isSet() {
			c.fail(ErrCodeInvalidTerm, i, "term sets both an id and a first element")
			return
		}
		if t.ID.IsPair() {
			first, second := w.entities.aliveAt(t.ID.firstIndex()), w.entities.aliveAt(t.ID.secondIndex())
			if first == 0 || second == 0 {
				c.fail(ErrCodeUnresolvedID, i, "pair %s refers to a deleted entity", w.idString(t.ID))
				return
			}
			t.First, t.Second = Ent(first), Ent(second)
		} else {
			if !w.entities.isAlive(t.ID.StripRole().Entity()) {
				c.fail(ErrCodeUnresolvedID, i, "id %s is not alive", t.ID)
				return
			}
			t.First = TermRef{ID: Entity(t.ID), Flags: IsEntity}
		}
	}
	if !t.First.isSet() {
		c.fail(ErrCodeInvalidTerm, i, "term has no id")
		return
	}
	c.resolveRef(i, &t.First)
	if t.Second.isSet() {
		c.resolveRef(i, &t.Second)
		if !t.First.isVar() && ID(t.First.ID).HasRole() {
			c.fail(ErrCodeInvalidTerm, i, "relationship %s carries a role", ID(t.First.ID))
		}
	}

	travFlags := t.Src.Flags & (Self | Up)
	if !t.Src.isSet() {
		t.Src = Var("this")
	} else {
		c.resolveRef(i, &t.Src)
	}
	if !t.Src.isVar() && (t.Src.ID == Wildcard || t.Src.ID == Any) {
		c.fail(ErrCodeInvalidTerm, i, "wildcard source is not supported")
	}
	if travFlags == 0 {
		travFlags = Self
	}
	t.Src.Flags = t.Src.Flags&^(Self|Up) | travFlags

	if travFlags&Up != 0 {
		if t.Trav == 0 {
			t.Trav = IsA
		}
		if !w.entities.isAlive(t.Trav) || w.traitFlags(t.Trav)&IDTraversable == 0 {
			c.fail(ErrCodeInvalidTerm, i, "relationship %s is not traversable", w.entityString(t.Trav.Index()))
		} else if travFlags == Up && t.Trav == IsA && !t.First.isVar() && !t.Second.isSet() &&
			w.traitFlags(t.First.ID.ID().StripRole().Entity())&IDDontInherit != 0 {
			c.fail(ErrCodeInvalidTerm, i, "%s cannot be inherited", w.idString(ID(t.First.ID)))
		}
	}
}

func (c *compiler) resolveRef(i int, r *TermRef) {
	w := c.w
	switch {
	case r.isVar():
		if r.Name == "" || strings.HasPrefix(r.Name, ".") || strings.HasSuffix(r.Name, ".") {
			c.fail(ErrCodeInvalidTerm, i, "invalid variable name %q", r.Name)
		}
	case r.Flags&IsName != 0:
		e := w.Lookup(r.Name)
		if e == 0 {
			c.fail(ErrCodeUnresolvedID, i, "%q does not resolve to an entity", r.Name)
			return
		}
		r.ID = e
		r.Name = ""
		r.Flags = r.Flags&^IsName | IsEntity
	default:
		if r.ID == This {
			*r = TermRef{Name: "this", Flags: IsVariable | r.Flags&(Self|Up)}
			return
		}
		if !w.entities.isAlive(ID(r.ID).StripRole().Entity()) {
			c.fail(ErrCodeUnresolvedID, i, "entity %s is not alive", r.ID)
			return
		}
		r.Flags |= IsEntity
	}
}

func (c *compiler) checkOperators() {
	terms := c.q.terms
	for i := range terms {
		t := &terms[i]
		inChain := i > 0 && terms[i-1].Oper == Or
		if t.Oper > NotFrom {
			c.fail(ErrCodeInvalidOperator, i, "unknown operator %d", t.Oper)
			continue
		}
		if t.Oper == Or && i == len(terms)-1 {
			c.fail(ErrCodeInvalidOperator, i, "or term is not followed by another term")
		}
		if inChain {
			if t.Oper != And && t.Oper != Or {
				c.fail(ErrCodeInvalidOperator, i, "%s term cannot be part of an or chain", t.Oper)
			}
			if !t.Src.same(terms[i-1].Src) {
				c.fail(ErrCodeInvalidOperator, i, "terms of an or chain must have the same source")
			}
		}
		if (t.Oper == Or || inChain) && (t.First.isVar() || t.Second.isVar()) {
			c.fail(ErrCodeInvalidOperator, i, "or terms cannot bind variables")
		}
		switch t.Oper {
		case AndFrom, OrFrom, NotFrom:
			if t.First.isVar() || t.Second.isSet() || ID(t.First.ID).IsWildcard() {
				c.fail(ErrCodeInvalidTerm, i, "%s term needs a single template entity", t.Oper)
			}
			if t.Src.Flags&Up != 0 {
				c.fail(ErrCodeInvalidTerm, i, "%s term cannot traverse", t.Oper)
			}
		}
	}
}

func (c *compiler) buildFields() {
	q := c.q
	f := -1
	for i := range q.terms {
		t := &q.terms[i]
		if i == 0 || q.terms[i-1].Oper != Or {
			f++
			qf := queryField{term: i, oper: t.Oper, inout: t.InOut, srcVar: -1}
			first := Wildcard
			if !t.First.isVar() {
				first = t.First.ID
			}
			if t.Second.isSet() {
				second := Wildcard
				if !t.Second.isVar() {
					second = t.Second.ID
				}
				qf.id = pairOf(first.Index(), second.Index())
			} else {
				qf.id = ID(first)
			}
			if !t.Src.isVar() {
				qf.src = t.Src.ID
			}
			q.fields = append(q.fields, qf)
		}
		t.field = f
	}
}

// isTrivial reports whether every term is a concrete id matched on $this
// itself, which is evaluated by a single op.
func (c *compiler) isTrivial() bool {
	q := c.q
	if q.thisVar < 0 {
		return false
	}
	for i := range q.terms {
		t := &q.terms[i]
		if t.Oper != And || !t.Src.isThis() || t.Src.Flags&Up != 0 {
			return false
		}
		if t.First.isVar() || ID(t.First.ID).IsWildcard() {
			return false
		}
		if t.Second.isSet() && (t.Second.isVar() || ID(t.Second.ID).IsWildcard()) {
			return false
		}
		if c.useSubtypes(t) || c.w.traitFlags(t.First.ID)&IDCanToggle != 0 {
			return false
		}
	}
	return true
}

func (c *compiler) findVar(name string, kind varKind) int8 {
	for i := range c.q.vars {
		if v := &c.q.vars[i]; v.name == name && v.kind == kind {
			return int8(i)
		}
	}
	return -1
}

func (c *compiler) ensureVar(name string, kind varKind) int8 {
	if v := c.findVar(name, kind); v >= 0 {
		return v
	}
	if len(c.q.vars) >= maxQueryVars {
		if !c.tooMany {
			c.tooMany = true
			c.fail(ErrCodeTooManyVariables, -1, "query needs more than %d variables", maxQueryVars)
		}
		return 0
	}
	c.q.vars = append(c.q.vars, queryVar{name: name, kind: kind, base: -1})
	return int8(len(c.q.vars) - 1)
}

func (c *compiler) anonVar() int8 {
	return c.ensureVar("_"+strconv.Itoa(len(c.q.vars)), varEntity)
}

func (c *compiler) isWritten(v int8) bool { return v >= 0 && c.written&bit(v) != 0 }

func (c *compiler) emit(op queryOp) int16 {
	q := c.q
	op.index = int16(len(q.ops))
	if op.src.isVar() && c.isWritten(op.src.v) {
		op.flags |= opSrcWritten
	}
	q.ops = append(q.ops, op)
	c.written |= op.written
	return op.index
}

func (c *compiler) emitEach(tv, ev int8, term int) {
	c.emit(queryOp{kind: opEach, field: -1, term: int16(term), src: opRef{v: tv}, first: opRef{v: ev}, second: noRef, written: bit(ev)})
}

func (c *compiler) checkCond(i int, v int8) {
	if c.condVars&bit(v) != 0 && !c.isWritten(v) {
		c.fail(ErrCodeUnboundVariable, i, "variable $%s is only bound by an optional term", c.q.vars[v].name)
	}
}

// idRef returns the operand for the first or second element of a term. An
// entity variable that is only known as a table range is bound row by row
// first.
func (c *compiler) idRef(i int, r TermRef) opRef {
	if !r.isVar() {
		return opRef{entity: r.ID, v: -1}
	}
	if strings.Contains(r.Name, ".") {
		return opRef{v: c.lookupVar(i, r.Name)}
	}
	v := c.ensureVar(r.Name, varEntity)
	c.checkCond(i, v)
	if !c.isWritten(v) {
		if tv := c.findVar(r.Name, varTable); tv >= 0 && c.isWritten(tv) {
			c.emitEach(tv, v, i)
		}
	}
	return opRef{v: v}
}

// lookupVar binds a variable to the named child of the variable before the
// last dot.
func (c *compiler) lookupVar(i int, name string) int8 {
	if v := c.findVar(name, varEntity); v >= 0 && c.isWritten(v) {
		return v
	}
	dot := strings.LastIndexByte(name, '.')
	base := c.idRef(i, Var(name[:dot]))
	if !c.isWritten(base.v) {
		c.fail(ErrCodeUnboundVariable, i, "variable $%s is not bound before its lookup", name[:dot])
	}
	v := c.ensureVar(name, varEntity)
	c.q.vars[v].base = base.v
	c.q.vars[v].lookup = name[dot+1:]
	c.emit(queryOp{kind: opLookup, field: -1, term: int16(i), src: base, first: opRef{v: v}, second: noRef, written: bit(v)})
	return v
}

// srcRef returns the source operand of a term. An unbound named variable is
// matched as a table variable, tv and ev then name the variables an Each op
// must bind after the term.
func (c *compiler) srcRef(i int, t *Term) (ref opRef, tv, ev int8) {
	r := t.Src
	if !r.isVar() {
		return opRef{entity: r.ID, v: -1}, -1, -1
	}
	if strings.Contains(r.Name, ".") {
		return opRef{v: c.lookupVar(i, r.Name)}, -1, -1
	}
	if e := c.findVar(r.Name, varEntity); e >= 0 {
		c.checkCond(i, e)
		if c.isWritten(e) {
			return opRef{v: e}, -1, -1
		}
	}
	tab := c.ensureVar(r.Name, varTable)
	c.checkCond(i, tab)
	if r.Name != "this" && !c.isWritten(tab) {
		return opRef{v: tab}, tab, c.ensureVar(r.Name, varEntity)
	}
	return opRef{v: tab}, -1, -1
}

// ensureSrcBound makes sure the source of a term that cannot enumerate
// tables itself is bound.
func (c *compiler) ensureSrcBound(i int, t *Term) {
	r := t.Src
	if !r.isVar() {
		return
	}
	if strings.Contains(r.Name, ".") {
		c.lookupVar(i, r.Name)
		return
	}
	if e := c.findVar(r.Name, varEntity); e >= 0 && c.isWritten(e) {
		return
	}
	tab := c.findVar(r.Name, varTable)
	if tab >= 0 && c.isWritten(tab) {
		return
	}
	if r.Name != "this" {
		c.fail(ErrCodeUnboundVariable, i, "variable $%s is not bound by a preceding term", r.Name)
		return
	}
	tab = c.ensureVar("this", varTable)
	c.emit(queryOp{kind: opAll, field: -1, term: int16(i), src: opRef{v: tab}, first: noRef, second: noRef, written: bit(tab)})
}

func (c *compiler) useSubtypes(t *Term) bool {
	if t.First.isVar() || t.Second.isSet() {
		return false
	}
	if id := ID(t.First.ID); id.HasRole() || id.IsWildcard() {
		return false
	}
	return c.w.idRecordGet(Pair(IsA, t.First.ID)) != nil
}

func (c *compiler) termOp(i int, t *Term, first opRef) (queryOp, int8, int8) {
	op := queryOp{kind: opAnd, field: int8(t.field), term: int16(i), first: first, second: noRef, trav: t.Trav}
	switch t.Src.Flags & (Self | Up) {
	case Up:
		op.kind = opUp
	case SelfUp:
		op.kind = opSelfUp
	}
	switch t.Oper {
	case AndFrom:
		op.kind = opAndFrom
	case OrFrom:
		op.kind = opOrFrom
	case NotFrom:
		op.kind = opNotFrom
	}
	if t.Second.isSet() {
		op.flags |= opHasSecond
		op.second = c.idRef(i, t.Second)
	}
	if (!first.isVar() && first.entity == Any) || (op.flags&opHasSecond != 0 && !op.second.isVar() && op.second.entity == Any) {
		op.flags |= opMatchAny
	}
	src, tv, ev := c.srcRef(i, t)
	op.src = src
	for _, r := range []opRef{op.src, op.first, op.second} {
		if r.isVar() && !c.isWritten(r.v) {
			op.written |= bit(r.v)
		}
	}
	return op, tv, ev
}

func (c *compiler) compileTerm(i int, t *Term) {
	switch t.Oper {
	case Not, Optional:
		c.ensureSrcBound(i, t)
		kind := opNot
		if t.Oper == Optional {
			kind = opOptional
		}
		start := c.emit(queryOp{kind: kind, field: int8(t.field), term: int16(i), src: noRef, first: noRef, second: noRef})
		saved := c.written
		c.compilePositive(i, t, true)
		end := c.emit(queryOp{kind: opEnd, field: -1, term: int16(i), src: noRef, first: noRef, second: noRef})
		c.q.ops[start].other = end
		if t.Oper == Optional {
			c.condVars |= c.written &^ saved
		}
		c.written = saved
	case AndFrom, OrFrom, NotFrom:
		c.ensureSrcBound(i, t)
		op, _, _ := c.termOp(i, t, opRef{entity: t.First.ID, v: -1})
		c.emit(op)
	default:
		c.compilePositive(i, t, false)
	}
}

func (c *compiler) compilePositive(i int, t *Term, inBlock bool) {
	first := c.idRef(i, t.First)
	if c.useSubtypes(t) {
		anon := c.anonVar()
		c.emit(queryOp{kind: opSubtypes, field: -1, term: int16(i), src: opRef{v: anon}, first: first, second: noRef, written: bit(anon)})
		first = opRef{v: anon}
	}
	op, tv, ev := c.termOp(i, t, first)
	c.emit(op)
	if !inBlock && !t.Second.isSet() && !t.First.isVar() && op.src.isVar() &&
		c.q.vars[op.src.v].kind == varTable && c.w.traitFlags(t.First.ID)&IDCanToggle != 0 {
		c.emit(queryOp{kind: opToggle, field: op.field, term: int16(i), src: op.src, first: opRef{entity: t.First.ID, v: -1}, second: noRef})
	}
	if tv >= 0 {
		c.emitEach(tv, ev, i)
	}
}

// compileOr emits an or block for the chain of terms from..to.
func (c *compiler) compileOr(from, to int) {
	terms := c.q.terms
	start := c.emit(queryOp{kind: opOr, field: int8(terms[from].field), term: int16(from), src: noRef, first: noRef, second: noRef})
	saved := c.written
	var written uint64
	var src opRef
	tv, ev := int8(-1), int8(-1)
	for k := from; k <= to; k++ {
		c.written = saved
		op, ktv, kev := c.termOp(k, &terms[k], c.idRef(k, terms[k].First))
		c.emit(op)
		written |= op.written
		src, tv, ev = op.src, ktv, kev
	}
	end := c.emit(queryOp{kind: opEnd, field: -1, term: int16(to), src: noRef, first: noRef, second: noRef})
	or := &c.q.ops[start]
	or.other = end
	or.src = src
	or.written = written
	if src.isVar() && c.isWritten(src.v) {
		or.flags |= opSrcWritten
	}
	c.written = saved | written
	if tv >= 0 {
		c.emitEach(tv, ev, to)
	}
}

// linkOps sets the success and failure labels. Block ops jump past their
// body, which they evaluate themselves.
func linkOps(ops []queryOp) {
	for i := range ops {
		ops[i].prev = int16(i - 1)
		ops[i].next = int16(i + 1)
	}
	for i := range ops {
		op := &ops[i]
		switch op.kind {
		case opNot, opOptional, opOr:
			end := op.other
			op.next = end + 1
			ops[end+1].prev = int16(i)
			if op.kind == opOr {
				for alt := int16(i) + 1; alt < end; alt++ {
					ops[alt].prev = int16(i)
					ops[alt].next = end
				}
			}
		}
	}
}
