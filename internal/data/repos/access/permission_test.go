package access

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/dcengine/internal/data/repos/testutil"
	daccess "github.com/yungbote/dcengine/internal/domain/access"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
)

func TestPermissionRepoHasActionGroup(t *testing.T) {
	db := testutil.DB(t)
	group := testutil.SeedGroup(t, db, "admins")
	user := testutil.SeedPrincipal(t, db, "alice", group.ID)
	other := testutil.SeedPrincipal(t, db, "bob")
	testutil.Grant(t, db, group.ID, daccess.RoleSuperUser, daccess.SystemObjectID, daccess.ObjectSystem)

	perms := NewPermissionRepo(db, testutil.Logger(t))
	principals := NewPrincipalRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	groups, err := principals.GroupIDs(dbc, user.ID)
	if err != nil {
		t.Fatalf("GroupIDs: %v", err)
	}
	if len(groups) != 1 || groups[0] != group.ID {
		t.Fatalf("GroupIDs: want=[%s] got=%v", group.ID, groups)
	}

	cases := []struct {
		name       string
		principals []uuid.UUID
		objects    []uuid.UUID
		group      daccess.ActionGroup
		want       bool
	}{
		{"via group", append([]uuid.UUID{user.ID}, groups...), []uuid.UUID{daccess.SystemObjectID}, daccess.ActionGroupCreateStoragePool, true},
		{"direct only", []uuid.UUID{user.ID}, []uuid.UUID{daccess.SystemObjectID}, daccess.ActionGroupCreateStoragePool, false},
		{"other principal", []uuid.UUID{other.ID}, []uuid.UUID{daccess.SystemObjectID}, daccess.ActionGroupCreateStoragePool, false},
		{"wrong object", []uuid.UUID{group.ID}, []uuid.UUID{uuid.New()}, daccess.ActionGroupCreateStoragePool, false},
		{"empty objects", []uuid.UUID{group.ID}, nil, daccess.ActionGroupCreateStoragePool, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := perms.HasActionGroup(dbc, tc.principals, tc.objects, tc.group)
			if err != nil {
				t.Fatalf("HasActionGroup: %v", err)
			}
			if got != tc.want {
				t.Fatalf("HasActionGroup: want=%v got=%v", tc.want, got)
			}
		})
	}

	principal, err := principals.GetByID(dbc, uuid.New())
	if err != nil || principal != nil {
		t.Fatalf("GetByID (missing): want=nil got=%+v err=%v", principal, err)
	}
}
