package storagepool

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/dcengine/internal/data/repos/testutil"
	types "github.com/yungbote/dcengine/internal/domain"
	"github.com/yungbote/dcengine/internal/domain/access"
	dcluster "github.com/yungbote/dcengine/internal/domain/cluster"
	"github.com/yungbote/dcengine/internal/engine/command"
	"github.com/yungbote/dcengine/internal/engine/enginetest"
	"github.com/yungbote/dcengine/internal/platform/dbctx"
)

func newEnv(t *testing.T) *enginetest.Env {
	t.Helper()
	e := enginetest.New(t)
	h := NewHandler(Deps{
		Log:         e.Log,
		Runner:      e.Runner,
		Hooks:       e.Hooks,
		Pools:       e.Pools,
		Networks:    e.Networks,
		Quotas:      e.Quotas,
		Permissions: e.Permissions,
		Config:      e.Config,
		Versions:    e.Versions,
	})
	if err := Register(e.Registry, h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return e
}

func countPools(t *testing.T, e *enginetest.Env, name string) int64 {
	t.Helper()
	var n int64
	if err := e.DB.Model(&types.StoragePool{}).Where("name = ?", name).Count(&n).Error; err != nil {
		t.Fatalf("count pools: %v", err)
	}
	return n
}

func TestAddEmptyStoragePoolCreatesDefaults(t *testing.T) {
	e := newEnv(t)
	admin := e.Admin(t)

	res := e.Dispatcher.Dispatch(context.Background(), ActionAddEmptyStoragePool, Params{
		Name:                 "dc1",
		StorageType:          dcluster.StorageTypeNFS,
		CompatibilityVersion: "4.7",
	}, admin)
	if !res.Succeeded() {
		t.Fatalf("dispatch: %+v", res)
	}
	poolID, ok := res.ReturnValue.(uuid.UUID)
	if !ok || poolID == uuid.Nil {
		t.Fatalf("return value: %#v", res.ReturnValue)
	}

	dbc := dbctx.New(context.Background())
	pool, err := e.Pools.GetByID(dbc, poolID)
	if err != nil || pool == nil {
		t.Fatalf("GetByID: pool=%v err=%v", pool, err)
	}
	if pool.Status != dcluster.StoragePoolUninitialized {
		t.Fatalf("status: want uninitialized got=%s", pool.Status)
	}

	nets, err := e.Networks.ListByPool(dbc, poolID)
	if err != nil {
		t.Fatalf("ListByPool: %v", err)
	}
	if len(nets) != 1 || nets[0].Name != "ovirtmgmt" || !nets[0].VMNetwork || nets[0].Description != "Management Network" {
		t.Fatalf("networks: %+v", nets)
	}

	q, err := e.Quotas.GetByPoolOwner(dbc, poolID, access.EveryoneID)
	if err != nil || q == nil {
		t.Fatalf("default quota: q=%v err=%v", q, err)
	}
	if !q.Unlimited || !q.IsDefault {
		t.Fatalf("default quota not unlimited: %+v", q)
	}
	perms, err := e.Permissions.ListByObject(dbc, q.ID)
	if err != nil {
		t.Fatalf("ListByObject: %v", err)
	}
	if len(perms) != 1 || perms[0].PrincipalID != access.EveryoneID || perms[0].RoleID != access.RoleQuotaConsumer {
		t.Fatalf("quota grants: %+v", perms)
	}

	rec := e.RequireAudit(t, EventAdded)
	if rec.ActorID != admin || rec.TargetID != "dc1" {
		t.Fatalf("audit record: %+v", rec)
	}
}

func TestAddEmptyStoragePoolLocalStorageOnOldVersion(t *testing.T) {
	e := newEnv(t)
	res := e.Dispatcher.Dispatch(context.Background(), ActionAddEmptyStoragePool, Params{
		Name:                 "dc1",
		StorageType:          dcluster.StorageTypeLocalFS,
		CompatibilityVersion: "4.2",
	}, e.Admin(t))
	if res.Outcome != command.OutcomeRejected || res.Kind != command.KindValidationRejected {
		t.Fatalf("result: %+v", res)
	}
	if len(res.Reasons) != 1 || res.Reasons[0].Code != ReasonLocalStorageVersion {
		t.Fatalf("reasons: %+v", res.Reasons)
	}
	if n := countPools(t, e, "dc1"); n != 0 {
		t.Fatalf("pool persisted after rejection")
	}
	e.RequireAudit(t, EventAddFailed)
}

func TestAddEmptyStoragePoolValidation(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   []string
	}{
		{
			name:   "empty name",
			params: Params{StorageType: dcluster.StorageTypeNFS, CompatibilityVersion: "4.7"},
			want:   []string{ReasonNameEmpty},
		},
		{
			name:   "long name",
			params: Params{Name: "a123456789a123456789a123456789a123456789X", StorageType: dcluster.StorageTypeNFS, CompatibilityVersion: "4.7"},
			want:   []string{ReasonNameTooLong},
		},
		{
			name:   "bad charset",
			params: Params{Name: "dc one!", StorageType: dcluster.StorageTypeNFS, CompatibilityVersion: "4.7"},
			want:   []string{ReasonNameInvalid},
		},
		{
			name:   "every failure is reported",
			params: Params{Name: "", StorageType: "tape", CompatibilityVersion: "3.0"},
			want:   []string{ReasonNameEmpty, ReasonInvalidStorageType, ReasonUnsupportedVersion},
		},
		{
			name:   "unparsable version skips the local storage gate",
			params: Params{Name: "dc1", StorageType: dcluster.StorageTypeLocalFS, CompatibilityVersion: "banana"},
			want:   []string{ReasonUnsupportedVersion},
		},
		{
			name:   "local storage on a current version",
			params: Params{Name: "dc2", StorageType: dcluster.StorageTypeLocalFS, CompatibilityVersion: "4.7"},
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			res := e.Dispatcher.Dispatch(context.Background(), ActionAddEmptyStoragePool, tt.params, e.Admin(t))
			if len(tt.want) == 0 {
				if !res.Succeeded() {
					t.Fatalf("want success got=%+v", res)
				}
				return
			}
			if res.Succeeded() {
				t.Fatalf("want rejection %v got success", tt.want)
			}
			if len(res.Reasons) != len(tt.want) {
				t.Fatalf("reasons: want %v got=%+v", tt.want, res.Reasons)
			}
			for i, code := range tt.want {
				if res.Reasons[i].Code != code {
					t.Fatalf("reason %d: want %s got=%s", i, code, res.Reasons[i].Code)
				}
			}
		})
	}
}

func TestAddEmptyStoragePoolDuplicateName(t *testing.T) {
	e := newEnv(t)
	testutil.SeedStoragePool(t, e.DB, "dc1", "4.7")
	res := e.Dispatcher.Dispatch(context.Background(), ActionAddEmptyStoragePool, Params{
		Name: "dc1", StorageType: dcluster.StorageTypeNFS, CompatibilityVersion: "4.7",
	}, e.Admin(t))
	if res.Code != ReasonNameExists {
		t.Fatalf("result: %+v", res)
	}
}

func TestAddEmptyStoragePoolConcurrentSameName(t *testing.T) {
	e := newEnv(t)
	admin := e.Admin(t)
	const workers = 6

	results := make([]command.Result, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Dispatcher.Dispatch(context.Background(), ActionAddEmptyStoragePool, Params{
				Name: "race", StorageType: dcluster.StorageTypeNFS, CompatibilityVersion: "4.7",
			}, admin)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, r := range results {
		switch {
		case r.Succeeded():
			won++
		case r.Code != ReasonNameExists:
			t.Fatalf("loser result: %+v", r)
		}
	}
	if won != 1 {
		t.Fatalf("winners: want 1 got=%d", won)
	}
	if n := countPools(t, e, "race"); n != 1 {
		t.Fatalf("pools named race: want 1 got=%d", n)
	}
	if n := len(e.Audit(t)); n != workers {
		t.Fatalf("audit records: want %d got=%d", workers, n)
	}
}

func TestAddEmptyStoragePoolUnauthorized(t *testing.T) {
	e := newEnv(t)
	user := testutil.SeedPrincipal(t, e.DB, "plain-user")
	res := e.Dispatcher.Dispatch(context.Background(), ActionAddEmptyStoragePool, Params{
		Name: "dc1", StorageType: dcluster.StorageTypeNFS, CompatibilityVersion: "banana",
	}, user.ID)
	if res.Kind != command.KindAuthorizationDenied || res.Code != command.CodeNotAuthorized {
		t.Fatalf("result: %+v", res)
	}
	// Validation would have reported the bad version.
	if len(res.Reasons) != 0 {
		t.Fatalf("validation ran for an unauthorized actor: %+v", res.Reasons)
	}
	e.RequireAudit(t, EventAddFailed)
}

func TestCompensateRemovesCreatedPool(t *testing.T) {
	e := newEnv(t)
	h := NewHandler(Deps{
		Log: e.Log, Runner: e.Runner, Hooks: e.Hooks, Pools: e.Pools, Networks: e.Networks,
		Quotas: e.Quotas, Permissions: e.Permissions, Config: e.Config, Versions: e.Versions,
	})
	cmd := &AddEmptyStoragePool{h: h, params: Params{Name: "gone", StorageType: dcluster.StorageTypeNFS, CompatibilityVersion: "4.7"}}
	if _, err := cmd.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	other := testutil.SeedStoragePool(t, e.DB, "keep", "4.7")

	if err := cmd.Compensate(context.Background()); err != nil {
		t.Fatalf("Compensate: %v", err)
	}
	if n := countPools(t, e, "gone"); n != 0 {
		t.Fatalf("pool survived compensation")
	}
	dbc := dbctx.New(context.Background())
	if qs, _ := e.Quotas.ListByPool(dbc, cmd.poolID); len(qs) != 0 {
		t.Fatalf("quotas survived compensation: %+v", qs)
	}
	if p, _ := e.Pools.GetByID(dbc, other.ID); p == nil {
		t.Fatalf("unrelated pool removed")
	}
	if err := cmd.Compensate(context.Background()); err != nil {
		t.Fatalf("second Compensate: %v", err)
	}
}
