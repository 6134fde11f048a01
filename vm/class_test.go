package vm

import (
	"strings"
	"testing"
)

func mroNames(c *Class) string {
	names := make([]string, len(c.MRO))
	for i, k := range c.MRO {
		names[i] = k.Name
	}
	return strings.Join(names, " ")
}

func TestLinearize(t *testing.T) {
	a, err := NewClass("A", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewClass("B", []*Class{a}, nil)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewClass("C", []*Class{b}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := mroNames(c); got != "C B A object" {
		t.Errorf("chain MRO = %q", got)
	}

	x, _ := NewClass("X", []*Class{a}, nil)
	d, err := NewClass("D", []*Class{b, x}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := mroNames(d); got != "D B X A object" {
		t.Errorf("diamond MRO = %q", got)
	}

	if _, err := NewClass("Bad", []*Class{a, b}, nil); err == nil {
		t.Error("expected an inconsistent MRO error")
	}
}

func TestBuiltinMRO(t *testing.T) {
	if got := mroNames(BoolType); got != "bool int object" {
		t.Errorf("bool MRO = %q", got)
	}
}
