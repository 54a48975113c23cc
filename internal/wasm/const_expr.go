package wasm

import "fmt"

// ConstExprKind tags a constant initializer expression.
type ConstExprKind byte

const (
	ConstExprI32 ConstExprKind = iota
	ConstExprI64
	ConstExprF32
	ConstExprF64
	ConstExprGlobalGet
	ConstExprRefNull
	ConstExprRefFunc
)

// ConstExpr is one constant initializer expression: a literal (Value holds
// the raw bits), a reference to an imported global (Value holds the index),
// or a function reference.
type ConstExpr struct {
	Kind  ConstExprKind
	Value uint64
}

// NewI32ConstExpr returns an i32.const initializer.
func NewI32ConstExpr(v int32) ConstExpr {
	return ConstExpr{Kind: ConstExprI32, Value: uint64(uint32(v))}
}

// NewI64ConstExpr returns an i64.const initializer.
func NewI64ConstExpr(v int64) ConstExpr {
	return ConstExpr{Kind: ConstExprI64, Value: uint64(v)}
}

// Evaluate resolves the expression against the instance's imported globals.
func (c ConstExpr) Evaluate(ins *Instance) (uint64, error) {
	switch c.Kind {
	case ConstExprI32, ConstExprI64, ConstExprF32, ConstExprF64:
		return c.Value, nil
	case ConstExprGlobalGet:
		idx := uint32(c.Value)
		if int(idx) >= len(ins.Globals) {
			return 0, fmt.Errorf("global.get initializer references global %d of %d", idx, len(ins.Globals))
		}
		return ins.Globals[idx].Val, nil
	case ConstExprRefNull:
		return uint64(RefNull), nil
	case ConstExprRefFunc:
		return c.Value, nil
	}
	return 0, fmt.Errorf("unknown initializer expression kind %d", c.Kind)
}
