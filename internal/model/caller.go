package model

// Caller is the already-verified identity attached to every request.
type Caller struct {
	ID       string
	Role     Role
	ChildIDs []string
}

func (c *Caller) IsChild(childID string) bool {
	return c.Role == RoleChild && c.ID == childID
}

// ManagesChild reports whether the identity provider listed childID for this guardian.
func (c *Caller) ManagesChild(childID string) bool {
	for _, id := range c.ChildIDs {
		if id == childID {
			return true
		}
	}
	return false
}
