// Package image stores compiled Candy chunks outside the process. A chunk
// image is the CBOR encoding of a chunk; images are read from module search
// paths or from a content-addressed sqlite store.
package image

import "github.com/chazu/candy/vm/chunk"

// FormatVersion is bumped whenever the image layout changes incompatibly.
const FormatVersion = 1

// Magic identifies a chunk image.
const Magic = "candy-chunk"

// Extension is the file extension of chunk images on disk.
const Extension = ".candyc"

// Image is the serialized form of a chunk.
type Image struct {
	Magic     string     `cbor:"1,keyasint"`
	Version   int        `cbor:"2,keyasint"`
	Source    string     `cbor:"3,keyasint"`
	Code      []byte     `cbor:"4,keyasint"`
	Lines     []byte     `cbor:"5,keyasint,omitempty"`
	Attrs     Attrs      `cbor:"6,keyasint"`
	Globals   []string   `cbor:"7,keyasint,omitempty"`
	Constants []Constant `cbor:"8,keyasint"`
}

// Attrs mirrors chunk.CodeAttributes.
type Attrs struct {
	MaxStack int       `cbor:"1,keyasint"`
	MaxLocal int       `cbor:"2,keyasint"`
	Handlers []Handler `cbor:"3,keyasint,omitempty"`
}

// Handler mirrors chunk.ErrorHandler.
type Handler struct {
	StartPC   int `cbor:"1,keyasint"`
	EndPC     int `cbor:"2,keyasint"`
	HandlerPC int `cbor:"3,keyasint"`
}

// Constant is a tagged constant pool entry. Exactly one payload field is set,
// as selected by Tag.
type Constant struct {
	Tag    chunk.ConstantTag `cbor:"1,keyasint"`
	Int    int64             `cbor:"2,keyasint,omitempty"`
	Double float64           `cbor:"3,keyasint,omitempty"`
	Str    string            `cbor:"4,keyasint,omitempty"`
	Method *Method           `cbor:"5,keyasint,omitempty"`
	Class  *Class            `cbor:"6,keyasint,omitempty"`
	Close  []int             `cbor:"7,keyasint,omitempty"`
}

// Method mirrors chunk.MethodInfo.
type Method struct {
	Name         string    `cbor:"1,keyasint"`
	Arity        int       `cbor:"2,keyasint"`
	VarArgsIndex int       `cbor:"3,keyasint"`
	Attrs        Attrs     `cbor:"4,keyasint"`
	FromPC       int       `cbor:"5,keyasint"`
	Length       int       `cbor:"6,keyasint"`
	Upvalues     []Upvalue `cbor:"7,keyasint,omitempty"`
}

// Upvalue mirrors chunk.UpvalueDesc.
type Upvalue struct {
	IsLocal bool  `cbor:"1,keyasint"`
	Index   uint8 `cbor:"2,keyasint"`
}

// Class mirrors chunk.ClassInfo.
type Class struct {
	Name          string    `cbor:"1,keyasint"`
	HasSuperclass bool      `cbor:"2,keyasint"`
	Initializer   *Method   `cbor:"3,keyasint,omitempty"`
	Methods       []*Method `cbor:"4,keyasint,omitempty"`
}
