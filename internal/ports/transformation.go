package ports

import "github.com/ObserveRTC/connector-sub000/internal/domain"

// Transformation maps one record to at most one record. A nil record with
// a nil error drops the input.
type Transformation interface {
	Transform(*domain.Record) (*domain.Record, error)
	Name() string
}

// TransformFunc adapts a function to Transformation.
type TransformFunc struct {
	Label string
	Fn    func(*domain.Record) (*domain.Record, error)
}

func (f TransformFunc) Transform(r *domain.Record) (*domain.Record, error) {
	return f.Fn(r)
}

func (f TransformFunc) Name() string {
	return f.Label
}
