package vm

import (
	"math"

	"github.com/scostello/monty/errz"
	"github.com/scostello/monty/heap"
	"github.com/scostello/monty/op"
	"github.com/scostello/monty/value"
)

// binaryOp implements every BinaryXxx/InplaceXxx opcode:
// pop right then left, compute, push the result. InplaceXxx opcodes carry
// identical semantics to their Binary counterpart at this level -- the
// compiler already desugars `x += y` into load/compute/store, so no
// target-mutation behavior belongs here.
func (vm *VirtualMachine) binaryOp(code op.Code) *errz.StructuredError {
	right := vm.pop()
	left := vm.pop()
	result, err := vm.applyBinary(code, left, right)
	vm.heap.ReleaseValue(left, vm.tracker)
	vm.heap.ReleaseValue(right, vm.tracker)
	if err != nil {
		return err
	}
	vm.push(result)
	return nil
}

func (vm *VirtualMachine) applyBinary(code op.Code, left, right value.Value) (value.Value, *errz.StructuredError) {
	switch code {
	case op.BinaryAdd, op.InplaceAdd:
		return vm.add(left, right)
	case op.BinarySub, op.InplaceSub:
		return vm.numeric(left, right, "-", subOverflow, func(a, b float64) float64 { return a - b })
	case op.BinaryMul, op.InplaceMul:
		return vm.mul(left, right)
	case op.BinaryDiv, op.InplaceDiv:
		return vm.div(left, right)
	case op.BinaryFloorDiv, op.InplaceFloorDiv:
		return vm.floorDiv(left, right)
	case op.BinaryMod, op.InplaceMod:
		return vm.mod(left, right)
	case op.BinaryPow, op.InplacePow:
		return vm.pow(left, right)
	case op.BinaryAnd, op.InplaceAnd:
		return vm.intOp(left, right, "&", func(a, b int64) int64 { return a & b })
	case op.BinaryOr, op.InplaceOr:
		return vm.intOp(left, right, "|", func(a, b int64) int64 { return a | b })
	case op.BinaryXor, op.InplaceXor:
		return vm.intOp(left, right, "^", func(a, b int64) int64 { return a ^ b })
	case op.BinaryLShift, op.InplaceLShift:
		return vm.intOp(left, right, "<<", func(a, b int64) int64 { return a << uint64(b) })
	case op.BinaryRShift, op.InplaceRShift:
		return vm.intOp(left, right, ">>", func(a, b int64) int64 { return a >> uint64(b) })
	case op.BinaryMatMul, op.InplaceMatMul:
		return value.None, errz.New(errz.TypeError, "matrix multiplication is not supported", vm.currentLocation(), nil)
	default:
		return value.None, errz.Newf(errz.RuntimeError, vm.currentLocation(), nil, "unhandled binary opcode %d", code)
	}
}

func (vm *VirtualMachine) typeErrorBinop(op_ string, left, right value.Value) *errz.StructuredError {
	return errz.Newf(errz.TypeError, vm.currentLocation(), nil,
		"unsupported operand type(s) for %s: %q and %q", op_, vm.typeName(left), vm.typeName(right))
}

// add handles BinaryAdd's three legal operand families: numeric, string
// concatenation, and list/tuple concatenation.
func (vm *VirtualMachine) add(left, right value.Value) (value.Value, *errz.StructuredError) {
	if ls, ok := vm.stringOf(left); ok {
		rs, ok := vm.stringOf(right)
		if !ok {
			return value.None, vm.typeErrorBinop("+", left, right)
		}
		v, err := vm.allocString(ls + rs)
		if err != nil {
			return value.None, errz.New(errz.MemoryError, err.Error(), vm.currentLocation(), nil)
		}
		return v, nil
	}
	if left.Tag() == value.TagRef && right.Tag() == value.TagRef {
		ls, rs := vm.heap.Get(left.AsHeapId()), vm.heap.Get(right.AsHeapId())
		if ls.Kind == heap.KindList && rs.Kind == heap.KindList {
			return vm.allocList(append(cloneAll(vm, ls.List), cloneAll(vm, rs.List)...))
		}
		if ls.Kind == heap.KindTuple && rs.Kind == heap.KindTuple {
			return vm.allocTuple(append(cloneAll(vm, ls.Tuple), cloneAll(vm, rs.Tuple)...))
		}
	}
	return vm.numeric(left, right, "+", addOverflow, func(a, b float64) float64 { return a + b })
}

// addOverflow, subOverflow, and mulOverflow detect signed 64-bit overflow
// the standard bit-trick way, so numeric()'s int64 paths can raise
// errz.OverflowError instead of silently wrapping.
func addOverflow(a, b int64) (int64, bool) {
	c := a + b
	return c, (a^c)&(b^c) >= 0
}

func subOverflow(a, b int64) (int64, bool) {
	c := a - b
	return c, (a^b)&(a^c) >= 0
}

func mulOverflow(a, b int64) (int64, bool) {
	c := a * b
	if a == 0 || b == 0 {
		return 0, true
	}
	return c, c/b == a
}

func cloneAll(vm *VirtualMachine, items []value.Value) []value.Value {
	out := make([]value.Value, len(items))
	for i, v := range items {
		out[i] = vm.heap.CloneValue(v)
	}
	return out
}

func (vm *VirtualMachine) allocList(items []value.Value) (value.Value, *errz.StructuredError) {
	id, err := vm.heap.Alloc(heap.Slot{Kind: heap.KindList, List: items}, vm.tracker)
	if err != nil {
		return value.None, errz.New(errz.MemoryError, err.Error(), vm.currentLocation(), nil)
	}
	return value.Ref(id), nil
}

func (vm *VirtualMachine) allocTuple(items []value.Value) (value.Value, *errz.StructuredError) {
	id, err := vm.heap.Alloc(heap.Slot{Kind: heap.KindTuple, Tuple: items}, vm.tracker)
	if err != nil {
		return value.None, errz.New(errz.MemoryError, err.Error(), vm.currentLocation(), nil)
	}
	return value.Ref(id), nil
}

// numeric applies intFn when both operands are ints, floatFn (with
// int-to-float promotion) when either is a float, and a TypeError
// otherwise.
func (vm *VirtualMachine) numeric(left, right value.Value, sym string, intFn func(a, b int64) (int64, bool), floatFn func(a, b float64) float64) (value.Value, *errz.StructuredError) {
	if left.Tag() == value.TagInt && right.Tag() == value.TagInt {
		r, ok := intFn(left.AsInt(), right.AsInt())
		if !ok {
			return value.None, errz.New(errz.OverflowError, "integer overflow", vm.currentLocation(), nil)
		}
		return value.Int(r), nil
	}
	if isNumeric(left) && isNumeric(right) {
		return value.Float(floatFn(asFloat(left), asFloat(right))), nil
	}
	return value.None, vm.typeErrorBinop(sym, left, right)
}

func (vm *VirtualMachine) mul(left, right value.Value) (value.Value, *errz.StructuredError) {
	if s, ok := vm.stringOf(left); ok && right.Tag() == value.TagInt {
		return vm.repeatString(s, right.AsInt())
	}
	if s, ok := vm.stringOf(right); ok && left.Tag() == value.TagInt {
		return vm.repeatString(s, left.AsInt())
	}
	if left.Tag() == value.TagRef && right.Tag() == value.TagInt {
		if s := vm.heap.Get(left.AsHeapId()); s.Kind == heap.KindList {
			return vm.allocList(repeatValues(vm, s.List, right.AsInt()))
		}
	}
	return vm.numeric(left, right, "*", mulOverflow, func(a, b float64) float64 { return a * b })
}

func (vm *VirtualMachine) repeatString(s string, n int64) (value.Value, *errz.StructuredError) {
	if n <= 0 {
		v, err := vm.allocString("")
		if err != nil {
			return value.None, errz.New(errz.MemoryError, err.Error(), vm.currentLocation(), nil)
		}
		return v, nil
	}
	out := make([]byte, 0, len(s)*int(n))
	for i := int64(0); i < n; i++ {
		out = append(out, s...)
	}
	v, err := vm.allocString(string(out))
	if err != nil {
		return value.None, errz.New(errz.MemoryError, err.Error(), vm.currentLocation(), nil)
	}
	return v, nil
}

func repeatValues(vm *VirtualMachine, items []value.Value, n int64) []value.Value {
	if n <= 0 {
		return nil
	}
	out := make([]value.Value, 0, len(items)*int(n))
	for i := int64(0); i < n; i++ {
		out = append(out, cloneAll(vm, items)...)
	}
	return out
}

func (vm *VirtualMachine) div(left, right value.Value) (value.Value, *errz.StructuredError) {
	if !isNumeric(left) || !isNumeric(right) {
		return value.None, vm.typeErrorBinop("/", left, right)
	}
	if asFloat(right) == 0 {
		return value.None, errz.New(errz.ZeroDivisionError, "division by zero", vm.currentLocation(), nil)
	}
	return value.Float(asFloat(left) / asFloat(right)), nil
}

func (vm *VirtualMachine) floorDiv(left, right value.Value) (value.Value, *errz.StructuredError) {
	if left.Tag() == value.TagInt && right.Tag() == value.TagInt {
		if right.AsInt() == 0 {
			return value.None, errz.New(errz.ZeroDivisionError, "division by zero", vm.currentLocation(), nil)
		}
		return value.Int(int64(math.Floor(float64(left.AsInt()) / float64(right.AsInt())))), nil
	}
	if !isNumeric(left) || !isNumeric(right) {
		return value.None, vm.typeErrorBinop("//", left, right)
	}
	if asFloat(right) == 0 {
		return value.None, errz.New(errz.ZeroDivisionError, "division by zero", vm.currentLocation(), nil)
	}
	return value.Float(math.Floor(asFloat(left) / asFloat(right))), nil
}

func (vm *VirtualMachine) mod(left, right value.Value) (value.Value, *errz.StructuredError) {
	if left.Tag() == value.TagInt && right.Tag() == value.TagInt {
		if right.AsInt() == 0 {
			return value.None, errz.New(errz.ZeroDivisionError, "modulo by zero", vm.currentLocation(), nil)
		}
		m := left.AsInt() % right.AsInt()
		if m != 0 && (m < 0) != (right.AsInt() < 0) {
			m += right.AsInt()
		}
		return value.Int(m), nil
	}
	if !isNumeric(left) || !isNumeric(right) {
		return value.None, vm.typeErrorBinop("%", left, right)
	}
	if asFloat(right) == 0 {
		return value.None, errz.New(errz.ZeroDivisionError, "modulo by zero", vm.currentLocation(), nil)
	}
	m := math.Mod(asFloat(left), asFloat(right))
	if m != 0 && (m < 0) != (asFloat(right) < 0) {
		m += asFloat(right)
	}
	return value.Float(m), nil
}

func (vm *VirtualMachine) pow(left, right value.Value) (value.Value, *errz.StructuredError) {
	if left.Tag() == value.TagInt && right.Tag() == value.TagInt && right.AsInt() >= 0 {
		result := int64(1)
		base := left.AsInt()
		for e := right.AsInt(); e > 0; e-- {
			r, ok := mulOverflow(result, base)
			if !ok {
				return value.None, errz.New(errz.OverflowError, "integer overflow", vm.currentLocation(), nil)
			}
			result = r
		}
		return value.Int(result), nil
	}
	if !isNumeric(left) || !isNumeric(right) {
		return value.None, vm.typeErrorBinop("**", left, right)
	}
	return value.Float(math.Pow(asFloat(left), asFloat(right))), nil
}

func (vm *VirtualMachine) intOp(left, right value.Value, sym string, fn func(a, b int64) int64) (value.Value, *errz.StructuredError) {
	if left.Tag() != value.TagInt || right.Tag() != value.TagInt {
		return value.None, vm.typeErrorBinop(sym, left, right)
	}
	return value.Int(fn(left.AsInt(), right.AsInt())), nil
}

func isNumeric(v value.Value) bool { return v.Tag() == value.TagInt || v.Tag() == value.TagFloat }

func asFloat(v value.Value) float64 {
	if v.Tag() == value.TagInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

// compareOp implements every CompareXxx opcode except CompareExceptionMatch
// (handled separately by dispatch.go's compareExceptionMatch).
func (vm *VirtualMachine) compareOp(code op.Code) *errz.StructuredError {
	right := vm.pop()
	left := vm.pop()
	result, err := vm.applyCompare(code, left, right)
	vm.heap.ReleaseValue(left, vm.tracker)
	vm.heap.ReleaseValue(right, vm.tracker)
	if err != nil {
		return err
	}
	vm.push(value.Bool(result))
	return nil
}

func (vm *VirtualMachine) applyCompare(code op.Code, left, right value.Value) (bool, *errz.StructuredError) {
	switch code {
	case op.CompareEq:
		return vm.valuesEqual(left, right), nil
	case op.CompareNe:
		return !vm.valuesEqual(left, right), nil
	case op.CompareIs:
		return vm.identical(left, right), nil
	case op.CompareIsNot:
		return !vm.identical(left, right), nil
	case op.CompareIn:
		return vm.contains(right, left)
	case op.CompareNotIn:
		ok, err := vm.contains(right, left)
		return !ok, err
	}
	cmp, err := vm.order(left, right)
	if err != nil {
		return false, err
	}
	switch code {
	case op.CompareLt:
		return cmp < 0, nil
	case op.CompareLe:
		return cmp <= 0, nil
	case op.CompareGt:
		return cmp > 0, nil
	case op.CompareGe:
		return cmp >= 0, nil
	default:
		return false, errz.Newf(errz.RuntimeError, vm.currentLocation(), nil, "unhandled compare opcode %d", code)
	}
}

func (vm *VirtualMachine) identical(left, right value.Value) bool {
	if left.Tag() != right.Tag() {
		return false
	}
	switch left.Tag() {
	case value.TagRef:
		return left.AsHeapId() == right.AsHeapId()
	case value.TagCell:
		return left.AsHeapId() == right.AsHeapId()
	default:
		return vm.valuesEqual(left, right)
	}
}

func (vm *VirtualMachine) order(left, right value.Value) (int, *errz.StructuredError) {
	if ls, ok := vm.stringOf(left); ok {
		rs, ok := vm.stringOf(right)
		if !ok {
			return 0, vm.typeErrorBinop("<", left, right)
		}
		switch {
		case ls < rs:
			return -1, nil
		case ls > rs:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if !isNumeric(left) || !isNumeric(right) {
		return 0, vm.typeErrorBinop("<", left, right)
	}
	a, b := asFloat(left), asFloat(right)
	switch {
	case a < b:
		return -1, nil
	case a > b:
		return 1, nil
	default:
		return 0, nil
	}
}

// contains implements CompareIn's `needle in haystack` over the container
// kinds the VM produces: string substring search, list/tuple/set
// membership, and dict key membership.
func (vm *VirtualMachine) contains(haystack, needle value.Value) (bool, *errz.StructuredError) {
	if hs, ok := vm.stringOf(haystack); ok {
		ns, ok := vm.stringOf(needle)
		if !ok {
			return false, vm.typeErrorBinop("in", needle, haystack)
		}
		return containsSubstring(hs, ns), nil
	}
	if haystack.Tag() != value.TagRef {
		return false, errz.Newf(errz.TypeError, vm.currentLocation(), nil, "argument of type %q is not iterable", vm.typeName(haystack))
	}
	s := vm.heap.Get(haystack.AsHeapId())
	switch s.Kind {
	case heap.KindList:
		return vm.setContains(s.List, needle), nil
	case heap.KindTuple:
		return vm.setContains(s.Tuple, needle), nil
	case heap.KindSet:
		return vm.setContains(s.Set, needle), nil
	case heap.KindDict:
		_, ok := vm.dictLookup(s.Dict, needle)
		return ok, nil
	default:
		return false, errz.Newf(errz.TypeError, vm.currentLocation(), nil, "argument of type %q is not iterable", vm.typeName(haystack))
	}
}

func containsSubstring(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// unaryOp implements UnaryNot/UnaryNeg/UnaryPos/UnaryInvert.
func (vm *VirtualMachine) unaryOp(code op.Code) *errz.StructuredError {
	v := vm.pop()
	result, err := vm.applyUnary(code, v)
	vm.heap.ReleaseValue(v, vm.tracker)
	if err != nil {
		return err
	}
	vm.push(result)
	return nil
}

func (vm *VirtualMachine) applyUnary(code op.Code, v value.Value) (value.Value, *errz.StructuredError) {
	switch code {
	case op.UnaryNot:
		return value.Bool(!vm.heap.IsTruthy(v)), nil
	case op.UnaryNeg:
		switch v.Tag() {
		case value.TagInt:
			return value.Int(-v.AsInt()), nil
		case value.TagFloat:
			return value.Float(-v.AsFloat()), nil
		default:
			return value.None, errz.Newf(errz.TypeError, vm.currentLocation(), nil, "bad operand type for unary -: %q", vm.typeName(v))
		}
	case op.UnaryPos:
		if isNumeric(v) {
			return v, nil
		}
		return value.None, errz.Newf(errz.TypeError, vm.currentLocation(), nil, "bad operand type for unary +: %q", vm.typeName(v))
	case op.UnaryInvert:
		if v.Tag() != value.TagInt {
			return value.None, errz.Newf(errz.TypeError, vm.currentLocation(), nil, "bad operand type for unary ~: %q", vm.typeName(v))
		}
		return value.Int(^v.AsInt()), nil
	default:
		return value.None, errz.Newf(errz.RuntimeError, vm.currentLocation(), nil, "unhandled unary opcode %d", code)
	}
}
