package models

// ValueKind discriminates the variants a request parameter can hold.
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindBool
	KindBytes
	KindList
	KindMap
)

// Value is a tagged variant carried in a request parameter bag. The encoder
// switches exhaustively on Kind instead of inspecting runtime types.
type Value struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Flag  bool
	Bytes []byte
	List  []Value
	Map   *Bag
}

func Str(s string) Value     { return Value{Kind: KindString, Str: s} }
func Int(i int64) Value      { return Value{Kind: KindInt, Int: i} }
func Bool(b bool) Value      { return Value{Kind: KindBool, Flag: b} }
func Raw(b []byte) Value     { return Value{Kind: KindBytes, Bytes: b} }
func List(vs ...Value) Value { return Value{Kind: KindList, List: vs} }
func Nested(b *Bag) Value    { return Value{Kind: KindMap, Map: b} }

// Bag is a string-keyed parameter map that preserves insertion order.
// Signing and encoding both depend on a stable key order.
type Bag struct {
	keys   []string
	values map[string]Value
}

func NewBag() *Bag {
	return &Bag{values: make(map[string]Value)}
}

// Set stores a value under key. Re-setting an existing key keeps its
// original position in the iteration order.
func (b *Bag) Set(key string, v Value) {
	if _, ok := b.values[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.values[key] = v
}

func (b *Bag) Get(key string) (Value, bool) {
	v, ok := b.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (b *Bag) Keys() []string {
	return b.keys
}

func (b *Bag) Len() int {
	if b == nil {
		return 0
	}
	return len(b.keys)
}
