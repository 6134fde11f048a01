package vm

// Built-in classes. They are created once at package initialization and
// shared by every VM.
var (
	ObjectType       *Class
	TypeType         *Class
	NoneClass        *Class
	IntType          *Class
	BoolType         *Class
	FloatType        *Class
	StrType          *Class
	ListType         *Class
	TupleType        *Class
	DictType         *Class
	SetType          *Class
	RangeType        *Class
	SliceType        *Class
	FunctionType     *Class
	BuiltinType      *Class
	MethodType       *Class
	ModuleType       *Class
	ElementType      *Class
	IteratorType     *Class
	GeneratorType    *Class
	CoroutineType    *Class
	FutureType       *Class
	SuperType        *Class
	StaticMethodType *Class
	ClassMethodType  *Class
	PropertyType     *Class
)

func init() {
	bootstrapTypes()
}

func newBuiltinClass(name string, bases ...*Class) *Class {
	c := &Class{
		Name:    name,
		Bases:   bases,
		Attrs:   make(map[string]Value),
		builtin: true,
	}
	mro, err := linearize(c)
	if err != nil {
		panic(err)
	}
	c.MRO = mro
	return c
}

// method registers a native method. The receiver is args[0] and is
// checked to be an instance of c before fn runs.
func (c *Class) method(name string, fn BuiltinFunc) {
	c.Attrs[name] = NewBuiltin(c.Name+"."+name, func(vm *VM, args []Value, kwargs *Dict) (Value, error) {
		if len(args) == 0 {
			return nil, vm.typeError("descriptor '%s' of '%s' object needs an argument", name, c.Name)
		}
		if !isInstance(args[0], c) {
			return nil, vm.typeError("descriptor '%s' for '%s' objects doesn't apply to a '%s' object", name, c.Name, TypeName(args[0]))
		}
		return fn(vm, args, kwargs)
	})
}

func bootstrapTypes() {
	ObjectType = newBuiltinClass("object")
	ObjectType.subclassable = true
	TypeType = newBuiltinClass("type", ObjectType)

	NoneClass = newBuiltinClass("NoneType", ObjectType)
	IntType = newBuiltinClass("int", ObjectType)
	BoolType = newBuiltinClass("bool", IntType)
	FloatType = newBuiltinClass("float", ObjectType)
	StrType = newBuiltinClass("str", ObjectType)
	ListType = newBuiltinClass("list", ObjectType)
	TupleType = newBuiltinClass("tuple", ObjectType)
	DictType = newBuiltinClass("dict", ObjectType)
	SetType = newBuiltinClass("set", ObjectType)
	RangeType = newBuiltinClass("range", ObjectType)
	SliceType = newBuiltinClass("slice", ObjectType)
	FunctionType = newBuiltinClass("function", ObjectType)
	BuiltinType = newBuiltinClass("builtin_function_or_method", ObjectType)
	MethodType = newBuiltinClass("method", ObjectType)
	ModuleType = newBuiltinClass("module", ObjectType)
	ElementType = newBuiltinClass("Element", ObjectType)
	IteratorType = newBuiltinClass("iterator", ObjectType)
	GeneratorType = newBuiltinClass("generator", ObjectType)
	CoroutineType = newBuiltinClass("coroutine", ObjectType)
	FutureType = newBuiltinClass("Future", ObjectType)
	SuperType = newBuiltinClass("super", ObjectType)
	StaticMethodType = newBuiltinClass("staticmethod", ObjectType)
	ClassMethodType = newBuiltinClass("classmethod", ObjectType)
	PropertyType = newBuiltinClass("property", ObjectType)

	bootstrapExceptions()

	registerConstructors()
	registerObjectMethods()
	registerStrMethods()
	registerListMethods()
	registerTupleMethods()
	registerDictMethods()
	registerSetMethods()
	registerAsyncMethods()
}
