package model

// Role of a team member on a job.
type Role string

const (
	RoleLead      Role = "lead"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool { return r == "" || r == RoleLead || r == RoleAssistant }

// IsLead reports whether the member can lead a job. An empty role leads.
func (r Role) IsLead() bool { return r == "" || r == RoleLead }

// TeamMember is a technician who can be assigned jobs.
type TeamMember struct {
	ID              string      `json:"id"`
	Name            string      `json:"name,omitempty"`
	Role            Role        `json:"role,omitempty"`
	Region          string      `json:"region,omitempty"`
	Home            *Coordinate `json:"home,omitempty"`
	CapacityPerDay  int         `json:"capacity_per_day"`
	Specializations []string    `json:"specializations,omitempty"`
	// Availability lists the declared working windows. Empty means the member
	// is available at any time inside the working hours.
	Availability []TimeWindow `json:"availability,omitempty"`
}

// HasSpecializations reports whether the member covers every required tag.
func (t TeamMember) HasSpecializations(required []string) bool {
	return len(t.MissingSpecializations(required)) == 0
}

// MissingSpecializations returns the required tags the member lacks.
func (t TeamMember) MissingSpecializations(required []string) []string {
	if len(required) == 0 {
		return nil
	}
	have := make(map[string]struct{}, len(t.Specializations))
	for _, s := range t.Specializations {
		have[s] = struct{}{}
	}
	var missing []string
	for _, r := range required {
		if _, ok := have[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

// AvailableFor reports whether the window fits in a declared availability
// window. Members without declared availability are always available.
func (t TeamMember) AvailableFor(w TimeWindow) bool {
	if len(t.Availability) == 0 {
		return true
	}
	for _, a := range t.Availability {
		if a.Contains(w) {
			return true
		}
	}
	return false
}

// Validate checks the member fields.
func (t TeamMember) Validate() error {
	if t.ID == "" {
		return Invalid("team.id", "is required")
	}
	if !t.Role.Valid() {
		return Invalid("team."+t.ID+".role", "unknown role %q", t.Role)
	}
	if t.CapacityPerDay < 0 {
		return Invalid("team."+t.ID+".capacity_per_day", "must not be negative")
	}
	if t.Home != nil {
		if err := t.Home.Validate(); err != nil {
			return Invalid("team."+t.ID+".home", "%v", err)
		}
	}
	for i, w := range t.Availability {
		if err := w.Validate(); err != nil {
			return Invalid("team."+t.ID+".availability", "window %d: %v", i, err)
		}
	}
	return nil
}
