package shapes

type Shape interface {
	Area() float64
}

type Base struct {
	ID string
}

type Circle struct {
	Base
	R float64
}

func (c *Circle) Area() float64 { return 3.14159 * c.R * c.R }

type Square struct {
	Base
	S float64
}

func (s Square) Area() float64 { return s.S * s.S }

type Registry struct {
	shapes []Shape
}

func (r *Registry) Add(s Shape) { r.shapes = append(r.shapes, s) }

// Legacy predates Shape.
//
//factorybypass:ignore
type Legacy struct{ Base }
