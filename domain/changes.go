package domain

// MemberInput carries the fields of a new member. Empty Role and Color select
// defaults.
type MemberInput struct {
	Name  string
	Role  string
	Color string
}

// MemberChanges is a shallow partial update of a member.
type MemberChanges struct {
	Name  *string
	Role  *string
	Color *string
}

// Apply returns m with the non-nil fields of c merged in.
func (c MemberChanges) Apply(m Member) Member {
	if c.Name != nil {
		m.Name = *c.Name
	}
	if c.Role != nil {
		m.Role = *c.Role
	}
	if c.Color != nil {
		m.Color = *c.Color
	}
	return m
}

// ProjectInput carries the fields of a new project.
type ProjectInput struct {
	Name        string
	Description string
	Members     []string
}

// ProjectChanges is a shallow partial update of a project. The week key is
// deliberately absent: it never changes after creation.
type ProjectChanges struct {
	Name        *string
	Description *string
	Members     *[]string
}

// Apply returns p with the non-nil fields of c merged in.
func (c ProjectChanges) Apply(p Project) Project {
	p = p.Clone()
	if c.Name != nil {
		p.Name = *c.Name
	}
	if c.Description != nil {
		p.Description = *c.Description
	}
	if c.Members != nil {
		p.Members = append([]string{}, (*c.Members)...)
	}
	return p
}

// MeetingInput carries the editable fields of a weekly meeting. An empty Date
// defaults to the day the meeting is saved.
type MeetingInput struct {
	Date      string
	Notes     string
	Attendees []string
}
