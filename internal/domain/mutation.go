package domain

// MutationKind distinguishes the network operation a local change maps to.
type MutationKind int

const (
	MutationCreate MutationKind = iota + 1
	MutationUpdate
	MutationStop
	MutationDelete
)

func (k MutationKind) String() string {
	switch k {
	case MutationCreate:
		return "create"
	case MutationUpdate:
		return "update"
	case MutationStop:
		return "stop"
	case MutationDelete:
		return "delete"
	}
	return "unknown"
}
