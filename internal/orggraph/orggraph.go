// Package orggraph is a read-only view over a department tree and a user
// roster. A Graph is built from flat snapshots supplied by the caller and is
// never mutated afterwards, so it may be shared across goroutines.
//
// Every traversal is bounded by MaxDepth and a visited set: the snapshot is
// expected to be an acyclic tree, but malformed parent links must never hang
// a resolution call.
package orggraph

import "strings"

// MaxDepth caps every upward or downward walk of the department tree.
const MaxDepth = 64

// Department is one node of the organisation tree.
type Department struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	ParentID  string `json:"parentId,omitempty" yaml:"parentId"`
	ManagerID string `json:"managerId,omitempty" yaml:"managerId"`
	Level     int    `json:"level" yaml:"level"`
}

// User is one roster entry. Role carries the job title.
type User struct {
	ID              string `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	DepartmentID    string `json:"departmentId,omitempty" yaml:"departmentId"`
	Role            string `json:"role,omitempty" yaml:"role"`
	DirectManagerID string `json:"directManagerId,omitempty" yaml:"directManagerId"`
}

// Graph indexes a snapshot of departments and users.
type Graph struct {
	departments []Department
	users       []User
	deptByID    map[string]int
	userByID    map[string]int
	children    map[string][]string
}

// New builds a graph. Slices are copied; on duplicate ids the first entry wins.
func New(departments []Department, users []User) *Graph {
	g := &Graph{
		departments: append([]Department(nil), departments...),
		users:       append([]User(nil), users...),
		deptByID:    make(map[string]int, len(departments)),
		userByID:    make(map[string]int, len(users)),
		children:    make(map[string][]string),
	}
	for i, d := range g.departments {
		if d.ID == "" {
			continue
		}
		if _, dup := g.deptByID[d.ID]; dup {
			continue
		}
		g.deptByID[d.ID] = i
		if d.ParentID != "" {
			g.children[d.ParentID] = append(g.children[d.ParentID], d.ID)
		}
	}
	for i, u := range g.users {
		if u.ID == "" {
			continue
		}
		if _, dup := g.userByID[u.ID]; !dup {
			g.userByID[u.ID] = i
		}
	}
	return g
}

// Departments returns a copy of the department snapshot.
func (g *Graph) Departments() []Department {
	return append([]Department(nil), g.departments...)
}

// Users returns a copy of the roster.
func (g *Graph) Users() []User {
	return append([]User(nil), g.users...)
}

// DepartmentByID looks a department up by id.
func (g *Graph) DepartmentByID(id string) (Department, bool) {
	if g == nil || id == "" {
		return Department{}, false
	}
	i, ok := g.deptByID[id]
	if !ok {
		return Department{}, false
	}
	return g.departments[i], true
}

// DepartmentByName returns the first department whose name matches exactly.
func (g *Graph) DepartmentByName(name string) (Department, bool) {
	name = strings.TrimSpace(name)
	if g == nil || name == "" {
		return Department{}, false
	}
	for _, d := range g.departments {
		if d.Name == name {
			return d, true
		}
	}
	return Department{}, false
}

// UserByID looks a user up by id.
func (g *Graph) UserByID(id string) (User, bool) {
	if g == nil || id == "" {
		return User{}, false
	}
	i, ok := g.userByID[id]
	if !ok {
		return User{}, false
	}
	return g.users[i], true
}

// ManagerOf resolves the department's manager, if the department exists, has
// a manager set and that manager is on the roster.
func (g *Graph) ManagerOf(departmentID string) (User, bool) {
	dept, ok := g.DepartmentByID(departmentID)
	if !ok || dept.ManagerID == "" {
		return User{}, false
	}
	return g.UserByID(dept.ManagerID)
}

// SupervisorOf finds who a user reports to. An explicit direct manager wins
// when it resolves; otherwise the department chain is walked upward from the
// user's own department and the first manager who is not the user is
// returned. Departments managed by the user themself are skipped, so a
// department head reports to the next manager up.
func (g *Graph) SupervisorOf(userID string) (User, bool) {
	user, ok := g.UserByID(userID)
	if !ok {
		return User{}, false
	}

	if user.DirectManagerID != "" && user.DirectManagerID != user.ID {
		if m, ok := g.UserByID(user.DirectManagerID); ok {
			return m, true
		}
	}

	deptID := user.DepartmentID
	visited := make(map[string]struct{})
	for depth := 0; deptID != "" && depth < MaxDepth; depth++ {
		if _, seen := visited[deptID]; seen {
			break
		}
		visited[deptID] = struct{}{}

		dept, ok := g.DepartmentByID(deptID)
		if !ok {
			break
		}
		if dept.ManagerID != "" && dept.ManagerID != user.ID {
			if m, ok := g.UserByID(dept.ManagerID); ok {
				return m, true
			}
		}
		deptID = dept.ParentID
	}
	return User{}, false
}

// SubDepartmentIDs returns every descendant of departmentID in breadth-first
// order, excluding departmentID itself.
func (g *Graph) SubDepartmentIDs(departmentID string) []string {
	if g == nil || departmentID == "" {
		return nil
	}
	var out []string
	visited := map[string]struct{}{departmentID: {}}
	frontier := []string{departmentID}
	for depth := 0; len(frontier) > 0 && depth < MaxDepth; depth++ {
		var next []string
		for _, id := range frontier {
			for _, child := range g.children[id] {
				if _, seen := visited[child]; seen {
					continue
				}
				visited[child] = struct{}{}
				out = append(out, child)
				next = append(next, child)
			}
		}
		frontier = next
	}
	return out
}

// UsersInDepartment lists the users whose department is departmentID or, when
// recursive, any of its descendants. Users keep roster order.
func (g *Graph) UsersInDepartment(departmentID string, recursive bool) []User {
	if g == nil || departmentID == "" {
		return nil
	}
	targets := map[string]struct{}{departmentID: {}}
	if recursive {
		for _, id := range g.SubDepartmentIDs(departmentID) {
			targets[id] = struct{}{}
		}
	}
	var out []User
	for _, u := range g.users {
		if u.DepartmentID == "" {
			continue
		}
		if _, ok := targets[u.DepartmentID]; ok {
			out = append(out, u)
		}
	}
	return out
}

// Ancestors returns the parent chain of departmentID, nearest first.
func (g *Graph) Ancestors(departmentID string) []Department {
	dept, ok := g.DepartmentByID(departmentID)
	if !ok {
		return nil
	}
	var out []Department
	visited := map[string]struct{}{dept.ID: {}}
	for depth := 0; dept.ParentID != "" && depth < MaxDepth; depth++ {
		if _, seen := visited[dept.ParentID]; seen {
			break
		}
		parent, ok := g.DepartmentByID(dept.ParentID)
		if !ok {
			break
		}
		visited[parent.ID] = struct{}{}
		out = append(out, parent)
		dept = parent
	}
	return out
}

// FullPath renders the names from the root down to departmentID, e.g.
// "公司 > EHS部 > 工程组". Unknown departments render as "".
func (g *Graph) FullPath(departmentID, separator string) string {
	dept, ok := g.DepartmentByID(departmentID)
	if !ok {
		return ""
	}
	ancestors := g.Ancestors(departmentID)
	names := make([]string, 0, len(ancestors)+1)
	for i := len(ancestors) - 1; i >= 0; i-- {
		names = append(names, ancestors[i].Name)
	}
	names = append(names, dept.Name)
	return strings.Join(names, separator)
}
