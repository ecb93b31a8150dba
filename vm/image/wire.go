package image

import (
	"fmt"
	"os"

	"github.com/chazu/candy/vm/chunk"
	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("candy.image")

// cborEncMode uses canonical mode so equal chunks encode to equal bytes,
// which the content-addressed store relies on.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalChunk serializes a chunk to CBOR bytes.
func MarshalChunk(c *chunk.Chunk) ([]byte, error) {
	img, err := FromChunk(c)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(img)
}

// UnmarshalChunk deserializes a chunk from CBOR bytes.
func UnmarshalChunk(data []byte) (*chunk.Chunk, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal chunk: %w", err)
	}
	return img.ToChunk()
}

// WriteFile writes the image of c to path.
func WriteFile(path string, c *chunk.Chunk) error {
	data, err := MarshalChunk(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("image: write %s: %w", path, err)
	}
	log.Debugf("wrote %s (%d bytes)", path, len(data))
	return nil
}

// ReadFile loads a chunk image from path.
func ReadFile(path string) (*chunk.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: cannot read %s: %w", path, err)
	}
	c, err := UnmarshalChunk(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

// FromChunk converts c to its serializable form.
func FromChunk(c *chunk.Chunk) (*Image, error) {
	img := &Image{
		Magic:   Magic,
		Version: FormatVersion,
		Source:  c.SourceName,
		Code:    c.Code,
		Lines:   c.Lines,
		Attrs:   fromAttrs(c.Attrs),
		Globals: c.GlobalNames,
	}
	for i, v := range c.Constants.Values() {
		k := Constant{Tag: v.Tag()}
		switch v := v.(type) {
		case chunk.Integer:
			k.Int = int64(v)
		case chunk.Double:
			k.Double = float64(v)
		case chunk.Utf8:
			k.Str = string(v)
		case *chunk.MethodInfo:
			k.Method = fromMethod(v)
		case *chunk.ClassInfo:
			k.Class = &Class{Name: v.Name, HasSuperclass: v.HasSuperclass}
			if v.Initializer != nil {
				k.Class.Initializer = fromMethod(v.Initializer)
			}
			for _, m := range v.Methods {
				k.Class.Methods = append(k.Class.Methods, fromMethod(m))
			}
		case chunk.CloseIndexes:
			k.Close = []int(v)
		default:
			return nil, fmt.Errorf("image: constant #%d has unsupported type %T", i, v)
		}
		img.Constants = append(img.Constants, k)
	}
	return img, nil
}

func fromAttrs(a chunk.CodeAttributes) Attrs {
	out := Attrs{MaxStack: a.MaxStack, MaxLocal: a.MaxLocal}
	for _, h := range a.Handlers {
		out.Handlers = append(out.Handlers, Handler(h))
	}
	return out
}

func fromMethod(m *chunk.MethodInfo) *Method {
	out := &Method{
		Name:         m.Name,
		Arity:        m.Arity,
		VarArgsIndex: m.VarArgsIndex,
		Attrs:        fromAttrs(m.Attrs),
		FromPC:       m.FromPC,
		Length:       m.Length,
	}
	for _, u := range m.Upvalues {
		out.Upvalues = append(out.Upvalues, Upvalue(u))
	}
	return out
}

// ToChunk validates the image and rebuilds the chunk it describes.
func (img *Image) ToChunk() (*chunk.Chunk, error) {
	if img.Magic != Magic {
		return nil, fmt.Errorf("image: not a chunk image (magic %q)", img.Magic)
	}
	if img.Version != FormatVersion {
		return nil, fmt.Errorf("image: unsupported format version %d", img.Version)
	}
	if len(img.Lines)%chunk.LineRecordSize != 0 {
		return nil, fmt.Errorf("image: line table length %d is not a multiple of %d", len(img.Lines), chunk.LineRecordSize)
	}

	pool := chunk.NewConstantPool()
	for i, k := range img.Constants {
		var v chunk.ConstantValue
		switch k.Tag {
		case chunk.TagInteger:
			v = chunk.Integer(k.Int)
		case chunk.TagDouble:
			v = chunk.Double(k.Double)
		case chunk.TagUtf8:
			v = chunk.Utf8(k.Str)
		case chunk.TagMethodInfo:
			if k.Method == nil {
				return nil, fmt.Errorf("image: constant #%d: missing method payload", i)
			}
			m, err := img.toMethod(k.Method)
			if err != nil {
				return nil, fmt.Errorf("image: constant #%d: %w", i, err)
			}
			v = m
		case chunk.TagClassInfo:
			if k.Class == nil {
				return nil, fmt.Errorf("image: constant #%d: missing class payload", i)
			}
			ci := &chunk.ClassInfo{Name: k.Class.Name, HasSuperclass: k.Class.HasSuperclass}
			if k.Class.Initializer != nil {
				m, err := img.toMethod(k.Class.Initializer)
				if err != nil {
					return nil, fmt.Errorf("image: constant #%d: %w", i, err)
				}
				ci.Initializer = m
			}
			for _, wm := range k.Class.Methods {
				m, err := img.toMethod(wm)
				if err != nil {
					return nil, fmt.Errorf("image: constant #%d: %w", i, err)
				}
				ci.Methods = append(ci.Methods, m)
			}
			v = ci
		case chunk.TagCloseIndexes:
			v = chunk.CloseIndexes(k.Close)
		default:
			return nil, fmt.Errorf("image: constant #%d has unknown tag %d", i, k.Tag)
		}
		pool.Add(v)
	}

	attrs, err := toAttrs(img.Attrs)
	if err != nil {
		return nil, fmt.Errorf("image: top-level code: %w", err)
	}
	return &chunk.Chunk{
		Code:        img.Code,
		Constants:   pool,
		SourceName:  img.Source,
		Lines:       chunk.LineTable(img.Lines),
		Attrs:       attrs,
		GlobalNames: img.Globals,
	}, nil
}

func toAttrs(a Attrs) (chunk.CodeAttributes, error) {
	if a.MaxStack < 0 || a.MaxLocal < 0 {
		return chunk.CodeAttributes{}, fmt.Errorf("negative frame size (stack %d, locals %d)", a.MaxStack, a.MaxLocal)
	}
	out := chunk.CodeAttributes{MaxStack: a.MaxStack, MaxLocal: a.MaxLocal}
	for _, h := range a.Handlers {
		out.Handlers = append(out.Handlers, chunk.ErrorHandler(h))
	}
	return out, nil
}

func (img *Image) toMethod(w *Method) (*chunk.MethodInfo, error) {
	if w.FromPC < 0 || w.Length < 0 || w.FromPC+w.Length > len(img.Code) {
		return nil, fmt.Errorf("method %s: code range %d+%d outside %d bytes", w.Name, w.FromPC, w.Length, len(img.Code))
	}
	attrs, err := toAttrs(w.Attrs)
	if err != nil {
		return nil, fmt.Errorf("method %s: %w", w.Name, err)
	}
	m := &chunk.MethodInfo{
		Name:         w.Name,
		Arity:        w.Arity,
		VarArgsIndex: w.VarArgsIndex,
		Attrs:        attrs,
		FromPC:       w.FromPC,
		Length:       w.Length,
	}
	for _, u := range w.Upvalues {
		m.Upvalues = append(m.Upvalues, chunk.UpvalueDesc(u))
	}
	return m, nil
}
