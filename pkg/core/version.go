package core

// Version information for the weaving engine
const (
	// Version is the current engine version
	Version = "development"

	// ShapeFormat is the version of the serialized class-shape format
	ShapeFormat = "v1"
)
