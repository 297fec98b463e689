package domain

import "fmt"

// MemberLookup resolves a member by id. ok is false when the id is dangling.
type MemberLookup func(id int64) (m *Member, ok bool, err error)

// ResolveDistributor follows manager links from m to the nearest Distributor.
// A Distributor resolves to itself. A missing link or a cycle yields nil and an IntegrityWarning.
func ResolveDistributor(m *Member, lookup MemberLookup) (*int64, error) {
	visited := map[int64]bool{}
	cur := m
	for depth := 0; depth < MaxHierarchyDepth; depth++ {
		if cur.Genealogy.IsDistributor() {
			id := cur.ID
			return &id, nil
		}
		if visited[cur.ID] {
			return nil, IntegrityWarning{MemberID: m.ID, Relation: "manager", RefID: cur.ID, Reason: "forms a cycle"}
		}
		visited[cur.ID] = true
		if cur.ManagerID == nil {
			return nil, nil
		}
		next, ok, err := lookup(*cur.ManagerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, IntegrityWarning{MemberID: cur.ID, Relation: "manager", RefID: *cur.ManagerID, Reason: "does not exist"}
		}
		cur = next
	}
	return nil, IntegrityWarning{MemberID: m.ID, Relation: "manager", RefID: cur.ID, Reason: fmt.Sprintf("chain deeper than %d", MaxHierarchyDepth)}
}

// ValidateMember checks the structural invariants of a member record.
func ValidateMember(m *Member) error {
	if m.Name == "" {
		return Invalid("member", m.ID, "name", "is required")
	}
	if !m.Genealogy.Valid() {
		return Invalid("member", m.ID, "genealogy", fmt.Sprintf("%q is not a genealogy level", m.Genealogy))
	}
	if m.ActiveStatus != "" && !m.ActiveStatus.Valid() {
		return Invalid("member", m.ID, "active_status", fmt.Sprintf("%q is not an active status", m.ActiveStatus))
	}
	if m.Genealogy.RequiresManager() && m.ManagerID == nil {
		return Invalid("member", m.ID, "manager_id", "is required below distributor level")
	}
	if m.ManagerID != nil && m.ID != 0 && *m.ManagerID == m.ID {
		return Invalid("member", m.ID, "manager_id", "cannot point at the member itself")
	}
	return nil
}

func Int64Ptr(v int64) *int64 { return &v }
