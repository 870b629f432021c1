// Package pdfobj provides the raw PDF object layer: a tagged object
// model, a tokenizer and parser for PDF syntax, cross-reference
// resolution with repair, and stream filter decoding. It covers exactly
// what the extraction engine needs to reach page dictionaries, their
// resources, and embedded image streams.
package pdfobj

import "fmt"

// ObjectRef identifies an indirect object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is one of: Null, Bool, Integer, Real, Name, String, Array,
// Dict, Ref, *Stream.
type Object interface{ isObject() }

type Null struct{}

type Bool bool

type Integer int64

type Real float64

// Name is a PDF name with the leading slash stripped and hex escapes
// resolved.
type Name string

// String is a PDF string; Hex records the source form so serialization
// can reproduce it.
type String struct {
	Bytes []byte
	Hex   bool
}

type Array []Object

type Dict map[Name]Object

// Ref is an indirect reference appearing as an operand or value.
type Ref ObjectRef

// Stream pairs a stream dictionary with its raw (still encoded) data.
type Stream struct {
	Dict Dict
	Raw  []byte
}

func (Null) isObject()    {}
func (Bool) isObject()    {}
func (Integer) isObject() {}
func (Real) isObject()    {}
func (Name) isObject()    {}
func (String) isObject()  {}
func (Array) isObject()   {}
func (Dict) isObject()    {}
func (Ref) isObject()     {}
func (*Stream) isObject() {}

// Name returns the value of a name-valued key.
func (d Dict) Name(key Name) (Name, bool) {
	if v, ok := d[key].(Name); ok {
		return v, true
	}
	return "", false
}

// Int returns an integer-valued key, accepting reals with integral use.
func (d Dict) Int(key Name) (int64, bool) {
	switch v := d[key].(type) {
	case Integer:
		return int64(v), true
	case Real:
		return int64(v), true
	}
	return 0, false
}

// Clone returns a shallow copy, used when a dictionary is rewritten for
// an incremental update.
func (d Dict) Clone() Dict {
	out := make(Dict, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Document is the parsed raw structure of one PDF file.
type Document struct {
	Objects   map[ObjectRef]Object
	Trailer   Dict
	Version   string
	StartXRef int64
	Repaired  bool
}

// Resolve follows an indirect reference to its object, or returns the
// input unchanged.
func (doc *Document) Resolve(obj Object) Object {
	for i := 0; i < 16; i++ { // ref-to-ref chains are rare and short
		ref, ok := obj.(Ref)
		if !ok {
			return obj
		}
		next, ok := doc.Objects[ObjectRef(ref)]
		if !ok {
			return Null{}
		}
		obj = next
	}
	return Null{}
}

// Dict resolves obj and returns its dictionary, unwrapping streams.
func (doc *Document) Dict(obj Object) (Dict, bool) {
	switch v := doc.Resolve(obj).(type) {
	case Dict:
		return v, true
	case *Stream:
		return v.Dict, true
	}
	return nil, false
}

// Stream resolves obj to a stream.
func (doc *Document) Stream(obj Object) (*Stream, bool) {
	s, ok := doc.Resolve(obj).(*Stream)
	return s, ok
}

// Array resolves obj to an array.
func (doc *Document) Array(obj Object) (Array, bool) {
	a, ok := doc.Resolve(obj).(Array)
	return a, ok
}

// Int resolves obj to an integer value.
func (doc *Document) Int(obj Object) (int64, bool) {
	switch v := doc.Resolve(obj).(type) {
	case Integer:
		return int64(v), true
	case Real:
		return int64(v), true
	}
	return 0, false
}

// Numbers resolves obj to an array of floats (rectangles, matrices).
func (doc *Document) Numbers(obj Object) ([]float64, bool) {
	arr, ok := doc.Array(obj)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(arr))
	for _, item := range arr {
		switch v := doc.Resolve(item).(type) {
		case Integer:
			out = append(out, float64(v))
		case Real:
			out = append(out, float64(v))
		default:
			return nil, false
		}
	}
	return out, true
}

// PageNode is one leaf of the page tree together with the attributes it
// inherits from ancestor Pages nodes.
type PageNode struct {
	Ref       ObjectRef
	Dict      Dict
	Inherited Dict // Resources, MediaBox, Rotate as seen from this leaf
}

// Attr looks a key up on the page itself, then in the inherited set.
func (p PageNode) Attr(key Name) (Object, bool) {
	if v, ok := p.Dict[key]; ok {
		return v, true
	}
	v, ok := p.Inherited[key]
	return v, ok
}

var inheritable = []Name{"Resources", "MediaBox", "CropBox", "Rotate"}

// Pages walks the page tree in document order.
func (doc *Document) Pages() []PageNode {
	root, ok := doc.Dict(doc.Trailer["Root"])
	if !ok {
		return nil
	}
	var pages []PageNode
	seen := make(map[ObjectRef]bool)
	doc.walkPages(root["Pages"], Dict{}, seen, &pages)
	return pages
}

func (doc *Document) walkPages(obj Object, inherited Dict, seen map[ObjectRef]bool, out *[]PageNode) {
	var ref ObjectRef
	if r, ok := obj.(Ref); ok {
		ref = ObjectRef(r)
		if seen[ref] {
			return
		}
		seen[ref] = true
	}
	node, ok := doc.Dict(obj)
	if !ok {
		return
	}
	typ, _ := node.Name("Type")
	switch typ {
	case "Pages":
		next := inherited.Clone()
		for _, key := range inheritable {
			if v, ok := node[key]; ok {
				next[key] = v
			}
		}
		kids, _ := doc.Array(node["Kids"])
		for _, kid := range kids {
			doc.walkPages(kid, next, seen, out)
		}
	case "Page":
		*out = append(*out, PageNode{Ref: ref, Dict: node, Inherited: inherited})
	default:
		// Some generators omit /Type on leaves; treat anything with
		// /Contents as a page.
		if _, ok := node["Contents"]; ok {
			*out = append(*out, PageNode{Ref: ref, Dict: node, Inherited: inherited})
		}
	}
}
