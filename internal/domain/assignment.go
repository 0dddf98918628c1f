package domain

import (
	"encoding/json"
	"fmt"
)

// Role is the position a personnel record holds within an organization.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleManager   Role = "manager"
	RolePersonnel Role = "personnel"
)

// ParseRole validates a stored role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleManager, RolePersonnel:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Assignment decides which personnel receive generated instances. Like
// Recurrence it is a closed set of variants built only through
// DecodeAssignment, so malformed stored configs fail at decode time.
type Assignment interface {
	isAssignment()
}

// Specific assigns to an explicit set of personnel ids.
type Specific struct {
	PersonnelIDs []string
}

func (Specific) isAssignment() {}

// ByRole assigns to every personnel record currently holding Role in the
// definition's organization, resolved fresh at generation time.
type ByRole struct {
	Role Role
}

func (ByRole) isAssignment() {}

const (
	assignmentSpecific = "specific"
	assignmentByRole   = "by_role"
)

type assignmentEnvelope struct {
	Type         string   `json:"type"`
	PersonnelIDs []string `json:"personnel_ids,omitempty"`
	Role         string   `json:"role,omitempty"`
}

// DecodeAssignment parses a stored assignment config.
func DecodeAssignment(definitionID string, raw []byte) (Assignment, error) {
	var env assignmentEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &MalformedAssignmentError{DefinitionID: definitionID, Reason: fmt.Sprintf("invalid assignment JSON: %v", err)}
	}

	switch env.Type {
	case assignmentSpecific:
		if len(env.PersonnelIDs) == 0 {
			return nil, &MalformedAssignmentError{DefinitionID: definitionID, Reason: "specific assignment with empty personnel set"}
		}
		return Specific{PersonnelIDs: env.PersonnelIDs}, nil

	case assignmentByRole:
		role, err := ParseRole(env.Role)
		if err != nil {
			return nil, &MalformedAssignmentError{DefinitionID: definitionID, Reason: err.Error()}
		}
		return ByRole{Role: role}, nil

	default:
		return nil, &MalformedAssignmentError{DefinitionID: definitionID, Reason: fmt.Sprintf("unknown assignment type %q", env.Type)}
	}
}

// EncodeAssignment serializes an Assignment to its stored JSON shape.
func EncodeAssignment(a Assignment) ([]byte, error) {
	switch v := a.(type) {
	case Specific:
		return json.Marshal(assignmentEnvelope{Type: assignmentSpecific, PersonnelIDs: v.PersonnelIDs})
	case ByRole:
		return json.Marshal(assignmentEnvelope{Type: assignmentByRole, Role: string(v.Role)})
	default:
		panic(fmt.Sprintf("domain: unknown assignment variant %T", a))
	}
}
