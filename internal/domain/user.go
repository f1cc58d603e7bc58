package domain

// Role is the access level of an authenticated user.
type Role string

// Roles, lowest privilege first.
const (
	RoleInvigilator Role = "invigilator"
	RoleExamOfficer Role = "exam_officer"
	RoleAdmin       Role = "admin"
)

var roleRank = map[Role]int{
	RoleInvigilator: 1,
	RoleExamOfficer: 2,
	RoleAdmin:       3,
}

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// HasPermission reports whether r is at least as privileged as required.
func (r Role) HasPermission(required Role) bool {
	return roleRank[r] >= roleRank[required] && roleRank[r] > 0
}
