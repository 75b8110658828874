package attr

import (
	"fmt"

	"modelcore/pkg/model"
)

// ChildModel stores a nested model. Raw data is constructed into a model
// the parent owns; an externally supplied model is only referenced. The
// nested model's settlement participates in the parent's readiness.
type ChildModel struct {
	Schema *model.Schema
	Opts   []model.Option
}

func (k ChildModel) Coerce(v model.Value) (model.Value, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *model.Model:
		return t, nil
	case map[string]model.Value:
		return model.New(k.Schema, t, append(k.Opts, model.AsNested())...)
	default:
		return nil, fmt.Errorf("expected %s model or data, got %T", k.Schema.Name(), v)
	}
}

// Equal is object identity: a nested model is replaced, not compared by
// content.
func (ChildModel) Equal(a, b model.Value) bool { return a == b }

// ChildCollection stores a nested collection. Raw entries are built into a
// collection the parent owns.
type ChildCollection struct {
	Schema *model.Schema
	Opts   []model.Option
}

func (k ChildCollection) Coerce(v model.Value) (model.Value, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *model.Collection:
		return t, nil
	case []model.Value:
		col := model.NewCollection(k.Schema, append(k.Opts, model.AsNested())...)
		entries := make([]any, len(t))
		copy(entries, t)
		if err := col.Set(entries...); err != nil {
			return nil, err
		}
		return col, nil
	default:
		return nil, fmt.Errorf("expected %s collection or entries, got %T", k.Schema.Name(), v)
	}
}

func (ChildCollection) Equal(a, b model.Value) bool { return a == b }
