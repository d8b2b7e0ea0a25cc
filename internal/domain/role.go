package domain

import "strings"

// Role is the fixed set of account roles.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleOfficer Role = "OFFICER"
	RoleAnalyst Role = "ANALYST"
)

// DefaultRole is assigned at registration when none is requested.
const DefaultRole = RoleOfficer

// Roles returns every valid role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleOfficer, RoleAnalyst}
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOfficer, RoleAnalyst:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Capability names something a route may require of its caller.
type Capability string

const (
	CapManageUsers         Capability = "manage_users"
	CapManageReferenceData Capability = "manage_reference_data"
	CapManagePredictions   Capability = "manage_predictions"
	CapWriteCrimeRecords   Capability = "write_crime_records"
	CapViewAnalytics       Capability = "view_analytics"
)

var capabilities = map[Capability][]Role{
	CapManageUsers:         {RoleAdmin},
	CapManageReferenceData: {RoleAdmin},
	CapManagePredictions:   {RoleAdmin},
	CapWriteCrimeRecords:   {RoleAdmin, RoleOfficer},
	CapViewAnalytics:       {RoleAdmin, RoleOfficer, RoleAnalyst},
}

// Can reports whether r holds capability c. Unknown roles and unknown
// capabilities hold nothing.
func (r Role) Can(c Capability) bool {
	for _, allowed := range capabilities[c] {
		if allowed == r {
			return true
		}
	}
	return false
}
