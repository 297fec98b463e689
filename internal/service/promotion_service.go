package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"payin-backend/internal/domain"
	"payin-backend/internal/metrics"
	"payin-backend/internal/repository"
)

// PromotionService moves members through the genealogy and re-parents their teams.
type PromotionService struct {
	Store  repository.Store
	Logger *slog.Logger
	Now    func() time.Time
}

type PromoteRequest struct {
	MemberID      int64
	NewGenealogy  domain.Genealogy
	EffectiveDate time.Time
	PromoterID    *int64
	Actor         string
}

type DemoteRequest struct {
	MemberID      int64
	NewGenealogy  domain.Genealogy
	EffectiveDate time.Time
	// MoveToID receives the members managed by the demoted member.
	MoveToID *int64
	// ManagerID places the demoted member itself when its new rank needs a manager it lacks.
	ManagerID *int64
	Actor     string
}

type MoveRequest struct {
	MemberIDs []int64
	ManagerID int64
	Reason    string
	Date      time.Time
	Actor     string
}

// Result is the promoted, demoted or moved member and everyone re-parented with it.
type Result struct {
	Member   *domain.Member
	Affected []domain.Member
}

// changes collects member writes so each member is written once.
type changes struct {
	order []int64
	byID  map[int64]*domain.Member
}

func newChanges() *changes {
	return &changes{byID: map[int64]*domain.Member{}}
}

func (c *changes) touch(m *domain.Member) *domain.Member {
	if existing, ok := c.byID[m.ID]; ok {
		return existing
	}
	cp := *m
	c.byID[m.ID] = &cp
	c.order = append(c.order, m.ID)
	return &cp
}

func (c *changes) flush(ctx context.Context, tx repository.Tx, self int64) (Result, error) {
	var res Result
	for _, id := range c.order {
		m := c.byID[id]
		if err := tx.UpdateMember(ctx, m); err != nil {
			return Result{}, err
		}
		if id == self {
			res.Member = m
		} else {
			res.Affected = append(res.Affected, *m)
		}
	}
	return res, nil
}

func (s PromotionService) Promote(ctx context.Context, req PromoteRequest) (*Result, error) {
	var out *Result
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		current, err := tx.GetMember(ctx, req.MemberID)
		if err != nil {
			return err
		}
		from := current.Genealogy
		next, ok := domain.NextGenealogy(from)
		if !ok || next != req.NewGenealogy {
			return domain.Invalid("member", current.ID, "genealogy", fmt.Sprintf("cannot promote a %s to %s", from.Label(), req.NewGenealogy.Label()))
		}
		if req.PromoterID != nil {
			if _, err := getRef(ctx, tx, "member", current.ID, "promoter_id", *req.PromoterID); err != nil {
				return err
			}
		}

		ch := newChanges()
		m := ch.touch(current)
		eff := effective(req.EffectiveDate, s.Now)
		m.PreviousGenealogy = &from
		m.Genealogy = next
		m.PromotionDate = &eff
		if req.PromoterID != nil {
			m.PromoterID = req.PromoterID
		}

		switch from {
		case domain.GenealogyConsultant:
			err = s.markProspectiveManager(ctx, tx, ch, m)
		case domain.GenealogyProspectiveManager:
			err = s.seatManager(ctx, tx, ch, m, eff)
		case domain.GenealogyManager:
			err = s.markProspectiveDistributor(ctx, tx, ch, m)
		case domain.GenealogyProspectiveDistributor:
			err = s.seatDistributor(ctx, tx, ch, m, eff)
		}
		if err != nil {
			return err
		}

		res, err := ch.flush(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		e := newEvent(domain.EventMemberPromoted, "member", m.ID, req.Actor,
			fmt.Sprintf("%s promoted from %s to %s", m.Name, from.Label(), next.Label()), nowOr(s.Now))
		e.Payload = map[string]any{"from": string(from), "to": string(next), "affected": affectedIDs(res.Affected)}
		if err := tx.AppendEvent(ctx, e); err != nil {
			return err
		}
		out = &res
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.GenealogyChanges.WithLabelValues("promote").Inc()
	return out, nil
}

// markProspectiveManager tags the member and the consultants it recruited under the same manager.
func (s PromotionService) markProspectiveManager(ctx context.Context, tx repository.Tx, ch *changes, m *domain.Member) error {
	self := m.ID
	m.RelatedProspectiveManagerID = &self
	recruits, err := tx.ListMembers(ctx, repository.MemberFilter{
		RecruiterID: &self,
		ManagerID:   m.ManagerID,
		Genealogies: []domain.Genealogy{domain.GenealogyConsultant, domain.GenealogyPotentialConsultant},
		Limit:       batchLimit,
	})
	if err != nil {
		return err
	}
	for i := range recruits {
		r := ch.touch(&recruits[i])
		r.RelatedProspectiveManagerID = &self
	}
	return nil
}

// seatManager takes the member's tagged team with it out from under its old manager.
// The new manager hangs under its distributor.
func (s PromotionService) seatManager(ctx context.Context, tx repository.Tx, ch *changes, m *domain.Member, eff time.Time) error {
	self := m.ID
	oldManager := m.ManagerID
	distributorID, err := domain.ResolveDistributor(m, memberLookup(ctx, tx))
	if err != nil {
		return domain.Invalid("member", m.ID, "manager_id", err.Error())
	}
	if distributorID == nil {
		return domain.Invalid("member", m.ID, "manager_id", "no distributor above this member")
	}
	m.PreviousManagerID = oldManager
	m.ManagerID = distributorID
	m.RelatedDistributorID = distributorID
	m.RelatedProspectiveManagerID = nil

	team, err := tx.ListMembers(ctx, repository.MemberFilter{ProspectiveManagerID: &self, ManagerID: oldManager, Limit: batchLimit})
	if err != nil {
		return err
	}
	for i := range team {
		if team[i].ID == self {
			continue
		}
		t := ch.touch(&team[i])
		t.PreviousManagerID = t.ManagerID
		t.ManagerID = &self
		t.RelatedDistributorID = distributorID
		t.RelatedProspectiveManagerID = nil
		t.MoveDate = &eff
	}
	return nil
}

// markProspectiveDistributor tags the member and the managers it promoted under the same distributor.
func (s PromotionService) markProspectiveDistributor(ctx context.Context, tx repository.Tx, ch *changes, m *domain.Member) error {
	self := m.ID
	m.RelatedProspectiveDistributorID = &self
	promoted, err := tx.ListMembers(ctx, repository.MemberFilter{
		PromoterID:    &self,
		DistributorID: m.RelatedDistributorID,
		Genealogies:   []domain.Genealogy{domain.GenealogyManager},
		Limit:         batchLimit,
	})
	if err != nil {
		return err
	}
	for i := range promoted {
		p := ch.touch(&promoted[i])
		p.RelatedProspectiveDistributorID = &self
	}
	return nil
}

// seatDistributor makes the member the root of its own tree: tagged managers move under
// it and every member below is re-pointed at the new distributor.
func (s PromotionService) seatDistributor(ctx context.Context, tx repository.Tx, ch *changes, m *domain.Member, eff time.Time) error {
	self := m.ID
	m.RelatedDistributorID = &self
	m.PreviousManagerID = m.ManagerID
	m.ManagerID = nil
	m.RelatedProspectiveDistributorID = nil

	managers, err := tx.ListMembers(ctx, repository.MemberFilter{ProspectiveDistributorID: &self, Limit: batchLimit})
	if err != nil {
		return err
	}
	for i := range managers {
		if managers[i].ID == self {
			continue
		}
		mg := ch.touch(&managers[i])
		mg.PreviousManagerID = mg.ManagerID
		mg.ManagerID = &self
		mg.RelatedProspectiveDistributorID = nil
		mg.MoveDate = &eff
	}
	return s.repointSubtree(ctx, tx, ch, self, &self)
}

// repointSubtree sets the distributor of everyone managed, directly or not, by root.
func (s PromotionService) repointSubtree(ctx context.Context, tx repository.Tx, ch *changes, root int64, distributorID *int64) error {
	seen := map[int64]bool{root: true}
	queue := []int64{root}
	for depth := 0; len(queue) > 0; depth++ {
		if depth > domain.MaxHierarchyDepth {
			warnIntegrity(ctx, s.Logger, domain.IntegrityWarning{MemberID: root, Relation: "manager", RefID: queue[0], Reason: "subtree deeper than the hierarchy limit"})
			return nil
		}
		var next []int64
		for _, id := range queue {
			children, err := s.childrenOf(ctx, tx, ch, id)
			if err != nil {
				return err
			}
			for _, c := range children {
				if seen[c.ID] {
					continue
				}
				seen[c.ID] = true
				if !sameID(c.RelatedDistributorID, distributorID) {
					ch.touch(c).RelatedDistributorID = distributorID
				}
				next = append(next, c.ID)
			}
		}
		queue = next
	}
	return nil
}

// childrenOf sees pending writes: members already re-pointed at id count as its children.
func (s PromotionService) childrenOf(ctx context.Context, tx repository.Tx, ch *changes, id int64) ([]*domain.Member, error) {
	stored, err := tx.ListMembers(ctx, repository.MemberFilter{ManagerID: &id, Limit: batchLimit})
	if err != nil {
		return nil, err
	}
	var out []*domain.Member
	listed := map[int64]bool{}
	for i := range stored {
		m := &stored[i]
		if pending, ok := ch.byID[m.ID]; ok {
			m = pending
		}
		listed[m.ID] = true
		if m.ManagerID != nil && *m.ManagerID == id {
			out = append(out, m)
		}
	}
	for _, pid := range ch.order {
		m := ch.byID[pid]
		if !listed[pid] && m.ManagerID != nil && *m.ManagerID == id {
			out = append(out, m)
		}
	}
	return out, nil
}

// Demote lowers a member's rank unconditionally; its direct team moves to MoveToID.
func (s PromotionService) Demote(ctx context.Context, req DemoteRequest) (*Result, error) {
	var out *Result
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		current, err := tx.GetMember(ctx, req.MemberID)
		if err != nil {
			return err
		}
		if !req.NewGenealogy.Valid() {
			return domain.Invalid("member", current.ID, "genealogy", fmt.Sprintf("%q is not a genealogy level", req.NewGenealogy))
		}
		if req.NewGenealogy == current.Genealogy {
			return domain.Invalid("member", current.ID, "genealogy", "member already has this genealogy")
		}
		self := current.ID
		team, err := tx.ListMembers(ctx, repository.MemberFilter{ManagerID: &self, Limit: batchLimit})
		if err != nil {
			return err
		}
		var target *domain.Member
		if req.MoveToID != nil {
			if *req.MoveToID == self {
				return domain.Invalid("member", self, "move_to_id", "cannot move the team to the demoted member")
			}
			target, err = getRef(ctx, tx, "member", self, "move_to_id", *req.MoveToID)
			if err != nil {
				return err
			}
		}
		if len(team) > 0 && target == nil {
			return domain.Invalid("member", self, "move_to_id", fmt.Sprintf("required: %d members are managed by this member", len(team)))
		}

		ch := newChanges()
		m := ch.touch(current)
		eff := effective(req.EffectiveDate, s.Now)
		from := m.Genealogy
		m.PreviousGenealogy = &from
		m.Genealogy = req.NewGenealogy
		m.DemotionDate = &eff
		if sameID(m.RelatedProspectiveManagerID, &self) {
			m.RelatedProspectiveManagerID = nil
		}
		if sameID(m.RelatedProspectiveDistributorID, &self) {
			m.RelatedProspectiveDistributorID = nil
		}
		if req.ManagerID != nil {
			if _, err := getRef(ctx, tx, "member", self, "manager_id", *req.ManagerID); err != nil {
				return err
			}
			m.PreviousManagerID = m.ManagerID
			m.ManagerID = req.ManagerID
		}
		if m.Genealogy.RequiresManager() && m.ManagerID == nil {
			return domain.Invalid("member", self, "manager_id", fmt.Sprintf("a %s needs a manager", m.Genealogy.Label()))
		}
		if sameID(m.ManagerID, &self) {
			return domain.Invalid("member", self, "manager_id", "cannot point at the member itself")
		}

		var targetDistributor *int64
		if target != nil {
			targetDistributor, err = s.distributorOf(ctx, tx, target)
			if err != nil {
				return err
			}
		}
		for i := range team {
			t := ch.touch(&team[i])
			t.PreviousManagerID = t.ManagerID
			t.ManagerID = &target.ID
			t.MoveDate = &eff
			if err := s.repoint(ctx, tx, ch, t, targetDistributor); err != nil {
				return err
			}
		}
		// Tagged followers lose their pending move once the member is no longer a prospect.
		for _, f := range []repository.MemberFilter{
			{ProspectiveManagerID: &self, Limit: batchLimit},
			{ProspectiveDistributorID: &self, Limit: batchLimit},
		} {
			tagged, err := tx.ListMembers(ctx, f)
			if err != nil {
				return err
			}
			for i := range tagged {
				t := ch.touch(&tagged[i])
				if sameID(t.RelatedProspectiveManagerID, &self) && m.Genealogy != domain.GenealogyProspectiveManager {
					t.RelatedProspectiveManagerID = nil
				}
				if sameID(t.RelatedProspectiveDistributorID, &self) && m.Genealogy != domain.GenealogyProspectiveDistributor {
					t.RelatedProspectiveDistributorID = nil
				}
			}
		}

		distributorID, err := domain.ResolveDistributor(m, s.pendingLookup(ctx, tx, ch))
		if err != nil {
			warnIntegrity(ctx, s.Logger, asWarning(err, self))
		}
		if err := s.repoint(ctx, tx, ch, m, distributorID); err != nil {
			return err
		}

		res, err := ch.flush(ctx, tx, self)
		if err != nil {
			return err
		}
		e := newEvent(domain.EventMemberDemoted, "member", self, req.Actor,
			fmt.Sprintf("%s demoted from %s to %s", m.Name, from.Label(), m.Genealogy.Label()), nowOr(s.Now))
		e.Payload = map[string]any{"from": string(from), "to": string(m.Genealogy), "affected": affectedIDs(res.Affected)}
		if err := tx.AppendEvent(ctx, e); err != nil {
			return err
		}
		out = &res
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.GenealogyChanges.WithLabelValues("demote").Inc()
	return out, nil
}

// Move re-parents members under another manager or distributor.
func (s PromotionService) Move(ctx context.Context, req MoveRequest) (*Result, error) {
	if len(req.MemberIDs) == 0 {
		return nil, domain.Invalid("move", 0, "member_ids", "at least one member is required")
	}
	var out *Result
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		target, err := getRef(ctx, tx, "move", 0, "manager_id", req.ManagerID)
		if err != nil {
			return err
		}
		if !target.Genealogy.IsManagerLevel() && !target.Genealogy.IsDistributor() {
			return domain.Invalid("move", 0, "manager_id", fmt.Sprintf("member %d is a %s, not a manager", target.ID, target.Genealogy.Label()))
		}
		targetDistributor, err := s.distributorOf(ctx, tx, target)
		if err != nil {
			return err
		}
		eff := effective(req.Date, s.Now)
		ch := newChanges()
		for _, id := range req.MemberIDs {
			current, err := tx.GetMember(ctx, id)
			if err != nil {
				return err
			}
			if id == target.ID {
				return domain.Invalid("member", id, "manager_id", "cannot point at the member itself")
			}
			if err := checkNotAbove(ctx, tx, id, target); err != nil {
				return err
			}
			m := ch.touch(current)
			m.PreviousManagerID = m.ManagerID
			m.ManagerID = &target.ID
			m.MoveDate = &eff
			if err := s.repoint(ctx, tx, ch, m, targetDistributor); err != nil {
				return err
			}
		}
		res, err := ch.flush(ctx, tx, req.MemberIDs[0])
		if err != nil {
			return err
		}
		for _, id := range req.MemberIDs {
			e := newEvent(domain.EventMemberMoved, "member", id, req.Actor,
				fmt.Sprintf("moved under %s", target.Name), nowOr(s.Now))
			e.Payload = map[string]any{"manager_id": target.ID, "reason": req.Reason}
			if err := tx.AppendEvent(ctx, e); err != nil {
				return err
			}
		}
		out = &res
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.GenealogyChanges.WithLabelValues("move").Add(float64(len(req.MemberIDs)))
	return out, nil
}

// repoint sets m's distributor and carries it down m's subtree.
func (s PromotionService) repoint(ctx context.Context, tx repository.Tx, ch *changes, m *domain.Member, distributorID *int64) error {
	if m.Genealogy.IsDistributor() {
		self := m.ID
		distributorID = &self
	}
	if !sameID(m.RelatedDistributorID, distributorID) {
		ch.touch(m).RelatedDistributorID = distributorID
		m.RelatedDistributorID = distributorID
	}
	return s.repointSubtree(ctx, tx, ch, m.ID, distributorID)
}

func (s PromotionService) distributorOf(ctx context.Context, tx repository.Tx, m *domain.Member) (*int64, error) {
	id, err := domain.ResolveDistributor(m, memberLookup(ctx, tx))
	if err != nil {
		var w domain.IntegrityWarning
		if errors.As(err, &w) {
			warnIntegrity(ctx, s.Logger, w)
			return nil, nil
		}
		return nil, err
	}
	return id, nil
}

// checkNotAbove rejects a move that would place a member under its own subtree.
func checkNotAbove(ctx context.Context, tx repository.Tx, memberID int64, target *domain.Member) error {
	lookup := memberLookup(ctx, tx)
	cur := target
	for depth := 0; depth < domain.MaxHierarchyDepth && cur.ManagerID != nil; depth++ {
		if *cur.ManagerID == memberID {
			return domain.Invalid("member", memberID, "manager_id", fmt.Sprintf("member %d is managed by this member", target.ID))
		}
		next, ok, err := lookup(*cur.ManagerID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		cur = next
	}
	return nil
}

// pendingLookup resolves members through writes not yet flushed.
func (s PromotionService) pendingLookup(ctx context.Context, tx repository.Tx, ch *changes) domain.MemberLookup {
	base := memberLookup(ctx, tx)
	return func(id int64) (*domain.Member, bool, error) {
		if m, ok := ch.byID[id]; ok {
			return m, true, nil
		}
		return base(id)
	}
}

func asWarning(err error, memberID int64) domain.IntegrityWarning {
	var w domain.IntegrityWarning
	if errors.As(err, &w) {
		return w
	}
	return domain.IntegrityWarning{MemberID: memberID, Relation: "manager", Reason: err.Error()}
}

func effective(t time.Time, now func() time.Time) time.Time {
	if t.IsZero() {
		return nowOr(now)
	}
	return t
}

func affectedIDs(members []domain.Member) []int64 {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}
