package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Class: user and built-in types
// ---------------------------------------------------------------------------

// Class is a Nagini type. Built-in classes are shared by every VM and are
// immutable; user classes are created by class statements.
type Class struct {
	Name  string
	Bases []*Class
	MRO   []*Class // method resolution order, starting with the class itself
	Attrs map[string]Value

	builtin      bool
	subclassable bool        // built-in classes user classes may derive from
	construct    BuiltinFunc // built-in constructor, called with the class arguments
}

func (c *Class) Type() *Class { return TypeType }

// NewClass creates a user class and computes its MRO. A class without
// bases derives from object.
func NewClass(name string, bases []*Class, attrs map[string]Value) (*Class, error) {
	if len(bases) == 0 && ObjectType != nil {
		bases = []*Class{ObjectType}
	}
	if attrs == nil {
		attrs = make(map[string]Value)
	}
	c := &Class{Name: name, Bases: bases, Attrs: attrs}
	mro, err := linearize(c)
	if err != nil {
		return nil, err
	}
	c.MRO = mro
	return c, nil
}

// linearize computes the C3 linearization of c.
func linearize(c *Class) ([]*Class, error) {
	var seqs [][]*Class
	for _, b := range c.Bases {
		seqs = append(seqs, append([]*Class(nil), b.MRO...))
	}
	seqs = append(seqs, append([]*Class(nil), c.Bases...))

	result := []*Class{c}
	for {
		empty := true
		for _, s := range seqs {
			if len(s) > 0 {
				empty = false
				break
			}
		}
		if empty {
			return result, nil
		}

		var next *Class
		for _, s := range seqs {
			if len(s) == 0 {
				continue
			}
			if !inTail(s[0], seqs) {
				next = s[0]
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("cannot create a consistent method resolution order (MRO) for bases of %s", c.Name)
		}
		result = append(result, next)
		for i, s := range seqs {
			if len(s) > 0 && s[0] == next {
				seqs[i] = s[1:]
			}
		}
	}
}

func inTail(c *Class, seqs [][]*Class) bool {
	for _, s := range seqs {
		if len(s) == 0 {
			continue
		}
		for _, x := range s[1:] {
			if x == c {
				return true
			}
		}
	}
	return false
}

// Lookup finds name along the MRO.
func (c *Class) Lookup(name string) (Value, bool) {
	for _, k := range c.MRO {
		if v, ok := k.Attrs[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// lookupAfter finds name along the MRO of c, starting after the class after.
func (c *Class) lookupAfter(after *Class, name string) (Value, bool) {
	found := false
	for _, k := range c.MRO {
		if !found {
			found = k == after
			continue
		}
		if v, ok := k.Attrs[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// IsSubclass reports whether c is other or derives from it.
func (c *Class) IsSubclass(other *Class) bool {
	for _, k := range c.MRO {
		if k == other {
			return true
		}
	}
	return false
}

// Instance is an object of a user class. Exceptions are instances too.
type Instance struct {
	Class *Class
	Attrs map[string]Value
}

// NewInstance allocates an instance without running __init__.
func NewInstance(c *Class) *Instance {
	return &Instance{Class: c, Attrs: make(map[string]Value)}
}

func (i *Instance) Type() *Class { return i.Class }

// isInstance reports whether v's class is cls or a subclass of it.
func isInstance(v Value, cls *Class) bool {
	return v.Type().IsSubclass(cls)
}

// ---------------------------------------------------------------------------
// Descriptors
// ---------------------------------------------------------------------------

// StaticMethod wraps a function that is not bound on attribute access.
type StaticMethod struct{ Func Value }

// ClassMethod wraps a function bound to the class on attribute access.
type ClassMethod struct{ Func Value }

// Property computes an attribute through getter and setter functions.
type Property struct {
	Getter Value
	Setter Value
}

func (*StaticMethod) Type() *Class { return StaticMethodType }
func (*ClassMethod) Type() *Class  { return ClassMethodType }
func (*Property) Type() *Class     { return PropertyType }

// ---------------------------------------------------------------------------
// Attribute access
// ---------------------------------------------------------------------------

// bind turns a class attribute found for self into the attribute value.
func (vm *VM) bind(attr Value, self Value, cls *Class) (Value, error) {
	switch a := attr.(type) {
	case *Function, *Builtin:
		return &BoundMethod{Self: self, Func: a}, nil
	case *StaticMethod:
		return a.Func, nil
	case *ClassMethod:
		return &BoundMethod{Self: cls, Func: a.Func}, nil
	case *Property:
		if a.Getter == nil {
			return nil, vm.newError(AttributeErrorType, "unreadable attribute")
		}
		return vm.call(a.Getter, []Value{self}, nil)
	}
	return attr, nil
}

// findAttr looks up name on obj, reporting false when it does not exist.
func (vm *VM) findAttr(obj Value, name string) (Value, bool, error) {
	switch x := obj.(type) {
	case *Instance:
		attr, inClass := x.Class.Lookup(name)
		if p, ok := attr.(*Property); ok && inClass {
			v, err := vm.bind(p, x, x.Class)
			return v, err == nil, err
		}
		if v, ok := x.Attrs[name]; ok {
			return v, true, nil
		}
		if name == "__class__" {
			return x.Class, true, nil
		}
		if inClass {
			v, err := vm.bind(attr, x, x.Class)
			return v, err == nil, err
		}
		return nil, false, nil

	case *Class:
		switch name {
		case "__name__":
			return Str(x.Name), true, nil
		case "__bases__":
			bases := make([]Value, len(x.Bases))
			for i, b := range x.Bases {
				bases[i] = b
			}
			return NewTuple(bases...), true, nil
		case "__mro__":
			mro := make([]Value, len(x.MRO))
			for i, c := range x.MRO {
				mro[i] = c
			}
			return NewTuple(mro...), true, nil
		}
		attr, ok := x.Lookup(name)
		if !ok {
			return nil, false, nil
		}
		switch a := attr.(type) {
		case *StaticMethod:
			return a.Func, true, nil
		case *ClassMethod:
			return &BoundMethod{Self: x, Func: a.Func}, true, nil
		}
		return attr, true, nil

	case *Module:
		if name == "__name__" {
			return Str(x.Name), true, nil
		}
		if !x.visible(name) {
			return nil, false, nil
		}
		v, ok := x.Globals.GetStr(name)
		return v, ok, nil

	case *Super:
		cls := x.Self.Type()
		if c, ok := x.Self.(*Class); ok {
			cls = c
		}
		attr, ok := cls.lookupAfter(x.Class, name)
		if !ok {
			return nil, false, nil
		}
		v, err := vm.bind(attr, x.Self, cls)
		return v, err == nil, err

	case *Function:
		switch name {
		case "__name__":
			return Str(x.Name), true, nil
		case "__module__":
			return Str(x.Module.Name), true, nil
		}
		v, ok := x.Attrs[name]
		if ok {
			return v, true, nil
		}

	case *Builtin:
		if name == "__name__" {
			return Str(x.Name), true, nil
		}

	case *BoundMethod:
		switch name {
		case "__self__":
			return x.Self, true, nil
		case "__func__":
			return x.Func, true, nil
		}
		return vm.findAttr(x.Func, name)

	case *Element:
		switch name {
		case "tag":
			return x.Tag, true, nil
		case "props":
			return x.Props, true, nil
		case "children":
			return x.Children, true, nil
		}

	case *Range:
		switch name {
		case "start":
			return Int(x.Start), true, nil
		case "stop":
			return Int(x.Stop), true, nil
		case "step":
			return Int(x.Step), true, nil
		}

	case *Slice:
		switch name {
		case "start":
			return x.Start, true, nil
		case "stop":
			return x.Stop, true, nil
		case "step":
			return x.Step, true, nil
		}
	}

	cls := obj.Type()
	if name == "__class__" {
		return cls, true, nil
	}
	attr, ok := cls.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	v, err := vm.bind(attr, obj, cls)
	return v, err == nil, err
}

// getAttr implements obj.name, falling back to __getattr__.
func (vm *VM) getAttr(obj Value, name string) (Value, error) {
	v, ok, err := vm.findAttr(obj, name)
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}
	if inst, ok := obj.(*Instance); ok {
		if hook, ok := inst.Class.Lookup("__getattr__"); ok {
			return vm.callMethod(inst, hook, Str(name))
		}
	}
	return nil, vm.attributeError(obj, name)
}

func (vm *VM) attributeError(obj Value, name string) *Exception {
	switch x := obj.(type) {
	case *Module:
		return vm.newError(AttributeErrorType, "module '%s' has no attribute '%s'", x.Name, name)
	case *Class:
		return vm.newError(AttributeErrorType, "type object '%s' has no attribute '%s'", x.Name, name)
	}
	return vm.newError(AttributeErrorType, "'%s' object has no attribute '%s'", TypeName(obj), name)
}

// setAttr implements obj.name = value.
func (vm *VM) setAttr(obj Value, name string, value Value) error {
	switch x := obj.(type) {
	case *Instance:
		if attr, ok := x.Class.Lookup(name); ok {
			if p, ok := attr.(*Property); ok {
				if p.Setter == nil {
					return vm.newError(AttributeErrorType, "can't set attribute '%s'", name)
				}
				_, err := vm.call(p.Setter, []Value{x, value}, nil)
				return err
			}
		}
		x.Attrs[name] = value
		return nil
	case *Class:
		if x.builtin {
			return vm.typeError("cannot set '%s' attribute of immutable type '%s'", name, x.Name)
		}
		x.Attrs[name] = value
		return nil
	case *Module:
		x.Globals.SetStr(name, value)
		return nil
	case *Function:
		if x.Attrs == nil {
			x.Attrs = make(map[string]Value)
		}
		x.Attrs[name] = value
		return nil
	}
	return vm.attributeError(obj, name)
}

// delAttr implements del obj.name.
func (vm *VM) delAttr(obj Value, name string) error {
	switch x := obj.(type) {
	case *Instance:
		if _, ok := x.Attrs[name]; ok {
			delete(x.Attrs, name)
			return nil
		}
	case *Class:
		if x.builtin {
			return vm.typeError("cannot delete '%s' attribute of immutable type '%s'", name, x.Name)
		}
		if _, ok := x.Attrs[name]; ok {
			delete(x.Attrs, name)
			return nil
		}
	case *Module:
		if x.Globals.DeleteStr(name) {
			return nil
		}
	}
	return vm.attributeError(obj, name)
}

// callMethod calls the unbound class attribute m with self prepended.
func (vm *VM) callMethod(self Value, m Value, args ...Value) (Value, error) {
	full := make([]Value, 0, len(args)+1)
	full = append(full, self)
	full = append(full, args...)
	return vm.call(m, full, nil)
}

// callDunder calls a special method defined by an instance's class,
// reporting false when the class does not define it.
func (vm *VM) callDunder(self Value, name string, args ...Value) (Value, bool, error) {
	inst, ok := self.(*Instance)
	if !ok {
		return nil, false, nil
	}
	m, ok := inst.Class.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	v, err := vm.callMethod(inst, m, args...)
	return v, true, err
}

// ---------------------------------------------------------------------------
// Class creation from a class statement
// ---------------------------------------------------------------------------

// buildClass creates a class from the namespace its body produced.
func (vm *VM) buildClass(name string, bases []Value, ns *Dict) (Value, error) {
	classes := make([]*Class, len(bases))
	for i, b := range bases {
		c, ok := b.(*Class)
		if !ok {
			return nil, vm.typeError("bases must be types, not '%s'", TypeName(b))
		}
		if c.builtin && !c.subclassable {
			return nil, vm.typeError("type '%s' is not an acceptable base type", c.Name)
		}
		classes[i] = c
	}

	attrs := make(map[string]Value, ns.Len())
	ns.Range(func(k, v Value) bool {
		attrs[string(k.(Str))] = v
		return true
	})
	cls, err := NewClass(name, classes, attrs)
	if err != nil {
		return nil, vm.typeError("%s", err.Error())
	}
	for _, v := range attrs {
		owned(v, cls)
	}
	return cls, nil
}

// owned records cls as the defining class of functions in its body.
func owned(v Value, cls *Class) {
	switch f := v.(type) {
	case *Function:
		if f.Owner == nil {
			f.Owner = cls
		}
	case *StaticMethod:
		owned(f.Func, cls)
	case *ClassMethod:
		owned(f.Func, cls)
	case *Property:
		owned(f.Getter, cls)
		owned(f.Setter, cls)
	}
}
