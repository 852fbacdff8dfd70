package model

// Person is a people-profile card extracted from a team/about page.
type Person struct {
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	Photo    string `json:"photo,omitempty"`
	Source   string `json:"source,omitempty"` // "jsonld" or "dom"
}

// SignalCount counts the independent corroborating signals on a card
// beyond the name itself. One strong card needs at least two.
func (p Person) SignalCount() int {
	n := 0
	for _, f := range []string{p.Role, p.Email, p.Phone, p.LinkedIn, p.Photo} {
		if f != "" {
			n++
		}
	}
	return n
}
