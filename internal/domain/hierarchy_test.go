package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(members ...*Member) MemberLookup {
	byID := map[int64]*Member{}
	for _, m := range members {
		byID[m.ID] = m
	}
	return func(id int64) (*Member, bool, error) {
		m, ok := byID[id]
		return m, ok, nil
	}
}

func TestResolveDistributor(t *testing.T) {
	d := &Member{ID: 1, Name: "D", Genealogy: GenealogyDistributor}
	m := &Member{ID: 2, Name: "M", Genealogy: GenealogyManager, ManagerID: Int64Ptr(1)}
	c := &Member{ID: 3, Name: "C", Genealogy: GenealogyConsultant, ManagerID: Int64Ptr(2)}
	lookup := lookupFrom(d, m, c)

	got, err := ResolveDistributor(c, lookup)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), *got)

	got, err = ResolveDistributor(d, lookup)
	require.NoError(t, err)
	assert.Equal(t, int64(1), *got)

	orphan := &Member{ID: 4, Name: "O", Genealogy: GenealogySupportOffice}
	got, err = ResolveDistributor(orphan, lookup)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveDistributorCycle(t *testing.T) {
	a := &Member{ID: 1, Name: "A", Genealogy: GenealogyManager, ManagerID: Int64Ptr(2)}
	b := &Member{ID: 2, Name: "B", Genealogy: GenealogyManager, ManagerID: Int64Ptr(1)}

	got, err := ResolveDistributor(a, lookupFrom(a, b))

	assert.Nil(t, got)
	var w IntegrityWarning
	require.True(t, errors.As(err, &w))
	assert.Equal(t, "manager", w.Relation)
	assert.Contains(t, w.Reason, "cycle")
}

func TestResolveDistributorMissingLink(t *testing.T) {
	c := &Member{ID: 3, Name: "C", Genealogy: GenealogyConsultant, ManagerID: Int64Ptr(99)}

	got, err := ResolveDistributor(c, lookupFrom(c))

	assert.Nil(t, got)
	var w IntegrityWarning
	require.True(t, errors.As(err, &w))
	assert.Equal(t, int64(99), w.RefID)
}

func TestValidateMember(t *testing.T) {
	tests := []struct {
		name    string
		member  Member
		wantErr string
	}{
		{name: "distributor without manager", member: Member{Name: "D", Genealogy: GenealogyDistributor}},
		{name: "consultant without manager", member: Member{Name: "C", Genealogy: GenealogyConsultant}, wantErr: "manager_id"},
		{name: "unknown genealogy", member: Member{Name: "X", Genealogy: "captain"}, wantErr: "genealogy"},
		{name: "missing name", member: Member{Genealogy: GenealogyDistributor}, wantErr: "name"},
		{name: "self manager", member: Member{ID: 5, Name: "S", Genealogy: GenealogyManager, ManagerID: Int64Ptr(5)}, wantErr: "itself"},
		{name: "bad status", member: Member{Name: "D", Genealogy: GenealogyDistributor, ActiveStatus: "asleep"}, wantErr: "active_status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMember(&tt.member)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStatusForGap(t *testing.T) {
	assert.Equal(t, StatusActive1, StatusForGap(0))
	assert.Equal(t, StatusActive2, StatusForGap(1))
	assert.Equal(t, StatusActive6, StatusForGap(5))
	assert.Equal(t, StatusInactive12, StatusForGap(6))
	assert.Equal(t, StatusInactive12, StatusForGap(11))
	assert.Equal(t, StatusInactive18, StatusForGap(12))
}
