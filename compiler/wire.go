package compiler

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// AST wire format for editor tooling and alternate back ends
// ---------------------------------------------------------------------------

// WireVersion is bumped whenever a node struct changes shape.
const WireVersion = 2

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("compiler: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("compiler: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

type wireNode struct {
	Kind NodeKind        `cbor:"k"`
	Data cbor.RawMessage `cbor:"d"`
}

type wireProgram struct {
	Version int        `cbor:"v"`
	Nodes   []wireNode `cbor:"n"`
	Body    []NodeID   `cbor:"b"`
}

// MarshalProgram serializes a Program to CBOR bytes.
func MarshalProgram(p *Program) ([]byte, error) {
	w := wireProgram{Version: WireVersion, Body: p.Body, Nodes: make([]wireNode, len(p.Nodes))}
	for i, n := range p.Nodes {
		data, err := cborEncMode.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("compiler: marshal node %d (%s): %w", i, n.Kind(), err)
		}
		w.Nodes[i] = wireNode{Kind: n.Kind(), Data: data}
	}
	return cborEncMode.Marshal(&w)
}

// UnmarshalProgram deserializes a Program from CBOR bytes and checks that
// every body reference is in range.
func UnmarshalProgram(data []byte) (*Program, error) {
	var w wireProgram
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("compiler: unmarshal program: %w", err)
	}
	if w.Version != WireVersion {
		return nil, fmt.Errorf("compiler: unsupported AST wire version %d", w.Version)
	}
	p := &Program{Nodes: make([]Node, len(w.Nodes)), Body: w.Body}
	for i, wn := range w.Nodes {
		n := newNode(wn.Kind)
		if n == nil {
			return nil, fmt.Errorf("compiler: node %d: unknown kind %d", i, wn.Kind)
		}
		if err := cbor.Unmarshal(wn.Data, n); err != nil {
			return nil, fmt.Errorf("compiler: unmarshal node %d (%s): %w", i, wn.Kind, err)
		}
		p.Nodes[i] = n
	}
	for _, id := range p.Body {
		if p.Node(id) == nil {
			return nil, fmt.Errorf("compiler: body references missing node %d", id)
		}
	}
	return p, nil
}

type yamlNode struct {
	ID     int                    `yaml:"id"`
	Kind   string                 `yaml:"kind"`
	Line   int                    `yaml:"line"`
	Fields map[string]interface{} `yaml:",inline"`
}

type yamlProgram struct {
	Body  []NodeID   `yaml:"body"`
	Nodes []yamlNode `yaml:"nodes"`
}

// MarshalYAML renders the arena as a human-readable YAML document. Child
// references appear as node IDs.
func MarshalYAML(p *Program) ([]byte, error) {
	doc := yamlProgram{Body: p.Body}
	for i, n := range p.Nodes {
		data, err := cborEncMode.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("compiler: marshal node %d: %w", i, err)
		}
		fields := map[string]interface{}{}
		if err := cborDecMode.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("compiler: decode node %d: %w", i, err)
		}
		delete(fields, "SpanVal")
		doc.Nodes = append(doc.Nodes, yamlNode{
			ID:     i,
			Kind:   n.Kind().String(),
			Line:   n.Span().Start.Line,
			Fields: fields,
		})
	}
	return yaml.Marshal(&doc)
}
