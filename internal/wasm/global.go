package wasm

// GlobalInstance is one global of an instance, its value stored as raw bits.
type GlobalInstance struct {
	Desc GlobalDescriptor
	Val  uint64
}
