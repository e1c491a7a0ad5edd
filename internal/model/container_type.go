package model

// ContainerType is a coarse executor class used as a scheduling
// constraint. The zero value, ContainerTypeNone, means "any container
// type is acceptable" everywhere a TaskGroup or Executor carries one.
type ContainerType string

const (
	// ContainerTypeNone is the sentinel meaning "any".
	ContainerTypeNone ContainerType = ""

	ContainerTypeCompute   ContainerType = "COMPUTE"
	ContainerTypeReserved  ContainerType = "RESERVED"
	ContainerTypeTransient ContainerType = "TRANSIENT"
)
