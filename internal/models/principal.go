package models

// Role is the operational role bound to a principal. The set is closed;
// authorization decisions switch on these values.
type Role string

const (
	RoleAdmin           Role = "ADMIN"
	RoleDoctor          Role = "DOCTOR"
	RolePatient         Role = "PATIENT"
	RoleNurse           Role = "NURSE"
	RolePharmacist      Role = "PHARMACIST"
	RoleSecurityGuard   Role = "SECURITY_GUARD"
	RoleAmbulanceDriver Role = "AMBULANCE_DRIVER"
	RoleCanteenWorker   Role = "CANTEEN_WORKER"
	RoleCleaner         Role = "CLEANER"
	RoleReceptionist    Role = "RECEPTIONIST"
)

// EmergencyRoles is the fan-out set for emergency alerts: staff who must be
// reachable when any connected client raises one.
var EmergencyRoles = []Role{RoleAdmin, RoleSecurityGuard, RoleDoctor, RoleNurse}

var roleDisplayNames = map[Role]string{
	RoleAdmin:           "Admin",
	RoleDoctor:          "Doctor",
	RolePatient:         "Patient",
	RoleNurse:           "Nurse",
	RolePharmacist:      "Pharmacist",
	RoleSecurityGuard:   "Security Guard",
	RoleAmbulanceDriver: "Ambulance Driver",
	RoleCanteenWorker:   "Hospital Canteen Worker",
	RoleCleaner:         "Hospital Cleaner",
	RoleReceptionist:    "Receptionist and Support Staff",
}

// Valid reports whether the role is a member of the closed set.
func (r Role) Valid() bool {
	_, ok := roleDisplayNames[r]
	return ok
}

// DisplayName returns the human-readable name for the role, or the raw value
// for an unknown role.
func (r Role) DisplayName() string {
	if name, ok := roleDisplayNames[r]; ok {
		return name
	}
	return string(r)
}

// ParseRole converts a wire/config string into a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// IsStaff reports whether the role belongs to hospital staff rather than a
// patient.
func (r Role) IsStaff() bool {
	return r.Valid() && r != RolePatient
}

// Principal is the authenticated identity bound to a session. It is immutable
// for the lifetime of that session.
type Principal struct {
	ID       string
	Username string
	FullName string
	Role     Role
}
