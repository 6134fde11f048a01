package compiler

import (
	"strings"
	"testing"
)

const wireSample = `@cache
async def fetch(url, *, retries=3):
    for i in range(retries):
        data = await get(url)
        if data:
            return f"{url}: {len(data)}"
    return <Error code={404} />
`

func TestProgramWireRoundTrip(t *testing.T) {
	prog := mustParse(t, wireSample)

	data, err := MarshalProgram(prog)
	if err != nil {
		t.Fatalf("MarshalProgram: %v", err)
	}
	got, err := UnmarshalProgram(data)
	if err != nil {
		t.Fatalf("UnmarshalProgram: %v", err)
	}

	if len(got.Nodes) != len(prog.Nodes) {
		t.Fatalf("got %d nodes, want %d", len(got.Nodes), len(prog.Nodes))
	}
	for i := range prog.Nodes {
		if got.Nodes[i].Kind() != prog.Nodes[i].Kind() {
			t.Errorf("node %d kind = %v, want %v", i, got.Nodes[i].Kind(), prog.Nodes[i].Kind())
		}
		if got.Nodes[i].Span() != prog.Nodes[i].Span() {
			t.Errorf("node %d span = %v, want %v", i, got.Nodes[i].Span(), prog.Nodes[i].Span())
		}
	}
	if len(got.Body) != 1 || got.Body[0] != prog.Body[0] {
		t.Fatalf("body = %v, want %v", got.Body, prog.Body)
	}

	fn := got.Node(got.Body[0]).(*FunctionDef)
	if fn.Name != "fetch" || !fn.Async || len(fn.Params) != 2 || len(fn.Decorators) != 1 {
		t.Errorf("function = %+v", fn)
	}
	if fn.Params[1].Kind != ParamKwOnly || fn.Params[1].Default == NoNode {
		t.Errorf("param retries = %+v, want keyword-only with default", fn.Params[1])
	}
}

func TestUnmarshalProgramRejectsBadInput(t *testing.T) {
	if _, err := UnmarshalProgram([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error for garbage input")
	}

	data, err := cborEncMode.Marshal(&wireProgram{Version: WireVersion + 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := UnmarshalProgram(data); err == nil || !strings.Contains(err.Error(), "version") {
		t.Errorf("error = %v, want version error", err)
	}

	data, err = cborEncMode.Marshal(&wireProgram{Version: WireVersion, Body: []NodeID{3}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := UnmarshalProgram(data); err == nil {
		t.Error("expected error for dangling body reference")
	}
}

func TestMarshalYAML(t *testing.T) {
	prog := mustParse(t, "x = 1 + 2\n")
	out, err := MarshalYAML(prog)
	if err != nil {
		t.Fatalf("MarshalYAML: %v", err)
	}
	text := string(out)
	for _, want := range []string{"kind: Assignment", "kind: BinaryOp", "Name: x", "body:"} {
		if !strings.Contains(text, want) {
			t.Errorf("YAML output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "SpanVal") {
		t.Errorf("YAML output should omit spans:\n%s", text)
	}
}
