// Package refaxis resolves a reference axis (spec §4.3): an axis whose
// column set is borrowed from another cube's axis, optionally passed
// through a transform cube before being bound to the referencing axis. It
// sits above package cube and below the registry, and depends only on a
// small CubeSource port so it never needs to import the registry itself.
package refaxis

import (
	"context"
	"fmt"
	"strings"

	"ncube/internal/axis"
	"ncube/internal/cube"
	"ncube/internal/ncerr"
	"ncube/internal/value"
)

// CubeSource loads a cube by application coordinate and name. The
// registry implements this directly; tests can supply a stub.
type CubeSource interface {
	GetCube(ctx context.Context, appID cube.ApplicationID, name string) (*cube.Cube, error)
}

// ValueTransformer runs a transform cube's rule-column expression against
// a single source column's value and returns the value to bind on the
// referencing axis. Distinct from cube.ExpressionEvaluator (which only
// reports true/false for RULE-axis firing): a transform produces a value.
type ValueTransformer interface {
	Transform(expr *value.Expression, ctx map[string]any) (any, error)
}

// Loader resolves RefSpecs into concrete axes.
type Loader struct {
	Source      CubeSource
	Transformer ValueTransformer
}

// NewLoader constructs a Loader. transformer may be nil if no axis in the
// system uses a transform cube.
func NewLoader(source CubeSource, transformer ValueTransformer) *Loader {
	return &Loader{Source: source, Transformer: transformer}
}

// Resolve builds a concrete axis from spec: it loads the source cube and
// axis, copies each column (preserving ids so cell bindings made against
// the source axis remain meaningful), runs them through the transform
// cube if one is configured, and returns an axis of the same
// type/valueType/order as the source, marked as a reference axis.
//
// visited guards against reference cycles: it is keyed by
// "tenant/app/version/status/branch/cube/axis" and must be threaded
// through by the caller across nested Resolve calls (a transform cube's
// own axes may themselves be reference axes).
func (l *Loader) Resolve(ctx context.Context, spec axis.RefSpec, visited map[string]bool) (*axis.Axis, error) {
	srcAppID := cube.ApplicationID{
		Tenant:  spec.SourceTenant,
		App:     spec.SourceApp,
		Version: spec.SourceVersion,
		Status:  cube.Status(spec.SourceStatus),
		Branch:  spec.SourceBranch,
	}

	visitKey := strings.ToLower(fmt.Sprintf("%s/%s/%s", srcAppID, spec.SourceCube, spec.SourceAxis))
	if visited[visitKey] {
		return nil, ncerr.NewIllegalState("reference axis cycle detected at %s", visitKey)
	}
	visited[visitKey] = true

	srcCube, err := l.Source.GetCube(ctx, srcAppID, spec.SourceCube)
	if err != nil {
		return nil, err
	}
	if srcCube == nil {
		return nil, ncerr.NewIllegalState("reference axis source cube %q not found in %s", spec.SourceCube, srcAppID)
	}
	srcAxis, ok := srcCube.GetAxis(spec.SourceAxis)
	if !ok {
		return nil, ncerr.NewIllegalState("reference axis source axis %q not found on cube %q", spec.SourceAxis, spec.SourceCube)
	}

	var transformAxis *axis.Axis
	if spec.HasTransform() {
		transformAppID := cube.ApplicationID{
			Tenant:  spec.TransformTenant,
			App:     spec.TransformApp,
			Version: spec.TransformVersion,
			Status:  cube.Status(spec.TransformStatus),
			Branch:  spec.TransformBranch,
		}
		transformCube, err := l.Source.GetCube(ctx, transformAppID, spec.TransformCube)
		if err != nil {
			return nil, err
		}
		if transformCube == nil {
			return nil, ncerr.NewIllegalState("reference axis transform cube %q not found in %s", spec.TransformCube, transformAppID)
		}
		if l.Transformer == nil {
			return nil, ncerr.NewIllegalState("reference axis %q requires a transform cube but no ValueTransformer is configured", spec.SourceAxis)
		}
		found := false
		for _, a := range transformCube.Axes() {
			if a.Type == value.AxisRule {
				transformAxis = a
				found = true
				break
			}
		}
		if !found {
			return nil, ncerr.NewIllegalState("transform cube %q has no RULE axis to invoke method %q", spec.TransformCube, spec.MethodName)
		}
	}

	out, err := axis.New(srcAxis.ID(), srcAxis.Name(), srcAxis.Type, srcAxis.ValueType, srcAxis.Order, false)
	if err != nil {
		return nil, err
	}
	out.SetReference(spec)
	for k, v := range srcAxis.MetaProperties() {
		out.SetMetaProperty(k, v)
	}

	for _, col := range srcAxis.Columns() {
		v := col.Value
		if v != nil && transformAxis != nil {
			transformed, err := l.applyTransform(transformAxis, spec.MethodName, *v)
			if err != nil {
				return nil, err
			}
			v = &transformed
		}
		if _, err := out.RestoreColumn(v, col.ID, col.MetaProperties); err != nil {
			return nil, fmt.Errorf("reference axis %q: %w", spec.SourceAxis, err)
		}
	}

	return out, nil
}

func (l *Loader) applyTransform(transformAxis *axis.Axis, methodName string, v value.Value) (value.Value, error) {
	cols, err := transformAxis.GetRuleColumnsStartingAt(methodName)
	if err != nil {
		return value.Value{}, err
	}
	if len(cols) == 0 || cols[0].IsDefault() {
		return value.Value{}, ncerr.NewIllegalState("transform method %q not found", methodName)
	}
	result, err := l.Transformer.Transform(cols[0].Value.AsExpression(), map[string]any{"value": v})
	if err != nil {
		return value.Value{}, err
	}
	out, ok := result.(value.Value)
	if !ok {
		return value.Value{}, ncerr.NewIllegalState("transform method %q returned a non-value.Value result", methodName)
	}
	return out, nil
}

// Break converts a reference axis back into an ordinary axis holding a
// frozen copy of its currently-resolved columns (spec §4.3's
// "breakAxisReference"): useful when a cube needs to stop tracking its
// source and own its value set going forward.
func Break(a *axis.Axis) (*axis.Axis, error) {
	if !a.IsReference() {
		return nil, ncerr.NewIllegalArgument("axis", a.Name(), "axis is not a reference axis")
	}
	out, err := axis.New(a.ID(), a.Name(), a.Type, a.ValueType, a.Order, false)
	if err != nil {
		return nil, err
	}
	for k, v := range a.MetaProperties() {
		out.SetMetaProperty(k, v)
	}
	for _, col := range a.Columns() {
		if _, err := out.RestoreColumn(col.Value, col.ID, col.MetaProperties); err != nil {
			return nil, err
		}
	}
	return out, nil
}
