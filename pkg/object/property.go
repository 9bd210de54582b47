package object

// Property is a computed attribute backed by up to three functions.
type Property struct {
	unit string
	Get  *Func
	Set  *Func
	Del  *Func
}

// NewProperty creates a property owned by unit. Any accessor may be nil.
func NewProperty(unit string, get, set, del *Func) *Property {
	return &Property{unit: unit, Get: get, Set: set, Del: del}
}

// Kind implements Entity.
func (p *Property) Kind() Kind { return KindProperty }

// Unit returns the unit that defined the property.
func (p *Property) Unit() string { return p.unit }

// Method is a function bound to a receiver.
type Method struct {
	Self any
	Func *Func
}

// Kind implements Entity.
func (m *Method) Kind() Kind { return KindMethod }

// Unit returns the unit of the underlying function.
func (m *Method) Unit() string { return m.Func.Unit() }

// Call invokes the function with the receiver prepended.
func (m *Method) Call(args ...any) (any, error) {
	return m.Func.Call(append([]any{m.Self}, args...)...)
}
