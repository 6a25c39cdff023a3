package axis

// RefSpec names the source (and optional transform) coordinate a reference
// axis borrows its columns from. It is pure metadata here: resolving it
// into actual columns is the job of package refaxis, which builds a fresh
// axis, attaches the spec with SetReference and copies the source columns
// in with RestoreColumn.
type RefSpec struct {
	SourceTenant  string
	SourceApp     string
	SourceVersion string
	SourceStatus  string
	SourceBranch  string
	SourceCube    string
	SourceAxis    string

	TransformTenant  string
	TransformApp     string
	TransformVersion string
	TransformStatus  string
	TransformBranch  string
	TransformCube    string
	MethodName       string
}

// HasTransform reports whether this reference specifies a transform cube.
func (r RefSpec) HasTransform() bool { return r.TransformCube != "" }
