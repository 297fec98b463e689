package domain

import "strings"

// MaxHierarchyDepth bounds every walk over manager or recruiter links.
// It is set once at startup from MAX_HIERARCHY_DEPTH.
var MaxHierarchyDepth = 64

var genealogies = map[Genealogy]string{
	GenealogyDistributor:            "Distributor",
	GenealogyDistributorPartner:     "Distributor Partner",
	GenealogyProspectiveDistributor: "Prospective Distributor",
	GenealogyManager:                "Manager",
	GenealogyManagerPartner:         "Manager Partner",
	GenealogyProspectiveManager:     "Prospective Manager",
	GenealogyConsultant:             "Consultant",
	GenealogyPotentialConsultant:    "Potential Consultant",
	GenealogySupportOffice:          "Support Office",
}

func ParseGenealogy(s string) (Genealogy, bool) {
	g := Genealogy(strings.ToLower(strings.TrimSpace(s)))
	_, ok := genealogies[g]
	return g, ok
}

func (g Genealogy) Valid() bool {
	_, ok := genealogies[g]
	return ok
}

func (g Genealogy) Label() string {
	return genealogies[g]
}

// IsConsultantLevel covers the ranks whose recruiters still collect team sales.
func (g Genealogy) IsConsultantLevel() bool {
	return g == GenealogyConsultant || g == GenealogyProspectiveManager
}

// IsManagerLevel covers the ranks evaluated on the manager path.
func (g Genealogy) IsManagerLevel() bool {
	return g == GenealogyManager || g == GenealogyProspectiveDistributor
}

func (g Genealogy) IsDistributor() bool {
	return g == GenealogyDistributor
}

// RequiresManager reports whether members of this rank must hang under a manager.
func (g Genealogy) RequiresManager() bool {
	return g != GenealogyDistributor && g != GenealogySupportOffice
}

// promotionPath lists the only upward moves the promotion use case performs.
var promotionPath = map[Genealogy]Genealogy{
	GenealogyPotentialConsultant:    GenealogyConsultant,
	GenealogyConsultant:             GenealogyProspectiveManager,
	GenealogyProspectiveManager:     GenealogyManager,
	GenealogyManager:                GenealogyProspectiveDistributor,
	GenealogyProspectiveDistributor: GenealogyDistributor,
}

func NextGenealogy(g Genealogy) (Genealogy, bool) {
	next, ok := promotionPath[g]
	return next, ok
}

var activeStatuses = map[ActiveStatus]bool{
	StatusPotentialConsultant: true,
	StatusPayInSheetPending:   true,
	StatusActive1:             true,
	StatusActive2:             true,
	StatusActive3:             true,
	StatusActive4:             true,
	StatusActive5:             true,
	StatusActive6:             true,
	StatusInactive12:          true,
	StatusInactive18:          true,
	StatusSuspended:           true,
	StatusBlacklisted:         true,
}

func (s ActiveStatus) Valid() bool {
	return activeStatuses[s]
}

// Frozen statuses are set by an administrator and never recomputed.
func (s ActiveStatus) Frozen() bool {
	return s == StatusSuspended || s == StatusBlacklisted
}

// StatusForGap maps months since the last sale to an activity bucket.
func StatusForGap(months int) ActiveStatus {
	switch {
	case months <= 0:
		return StatusActive1
	case months == 1:
		return StatusActive2
	case months == 2:
		return StatusActive3
	case months == 3:
		return StatusActive4
	case months == 4:
		return StatusActive5
	case months == 5:
		return StatusActive6
	case months < 12:
		return StatusInactive12
	default:
		return StatusInactive18
	}
}
