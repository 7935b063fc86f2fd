package orchestrator

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"stackyn/server/internal/domain"
	apperrors "stackyn/server/internal/errors"
	"stackyn/server/internal/runtime"
)

type fakeStore struct {
	apps      map[string]*domain.Application
	subdomain map[string]bool
	saveErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{apps: map[string]*domain.Application{}, subdomain: map[string]bool{}}
}

func (f *fakeStore) GetApplication(ctx context.Context, teamID string) (*domain.Application, error) {
	app, ok := f.apps[teamID]
	if !ok {
		return nil, nil
	}
	cp := *app
	return &cp, nil
}

func (f *fakeStore) GetApplications(ctx context.Context) ([]*domain.Application, error) {
	out := make([]*domain.Application, 0, len(f.apps))
	for _, a := range f.apps {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) GetAllTeamIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.apps))
	for id := range f.apps {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) IsSubdomainUsed(ctx context.Context, subdomain string) (bool, error) {
	return f.subdomain[subdomain], nil
}

func (f *fakeStore) Save(ctx context.Context, app *domain.Application) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := *app
	f.apps[app.TeamID] = &cp
	f.subdomain[app.Subdomain] = true
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, teamID, subdomain string) error {
	delete(f.apps, teamID)
	delete(f.subdomain, subdomain)
	return nil
}

func (f *fakeStore) Flush(ctx context.Context) error {
	f.apps = map[string]*domain.Application{}
	f.subdomain = map[string]bool{}
	return nil
}

type fakeRuntime struct {
	runResult  *runtime.RunResult
	runErr     error
	deleted    []string
	deleteErr  error
	startedErr error
}

func (f *fakeRuntime) Run(ctx context.Context, imageName, subdomain, containerName, registryCredentials, network, baseDomain string, timeout time.Duration) (*runtime.RunResult, error) {
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.runResult, nil
}

func (f *fakeRuntime) Start(ctx context.Context, containerID string) (*int64, string, error) {
	if f.startedErr != nil {
		return nil, "", f.startedErr
	}
	now := int64(1000)
	return &now, "started", nil
}

func (f *fakeRuntime) Delete(ctx context.Context, idOrName string) (bool, error) {
	f.deleted = append(f.deleted, idOrName)
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	return true, nil
}

func newOrchestrator(st Store, rt Runtime) *Orchestrator {
	return New(st, rt, nil, zap.NewNop(), "traefik_net", "apps.example.com", 5*time.Second)
}

func TestDeployApplication_freshSubdomain(t *testing.T) {
	st := newFakeStore()
	rt := &fakeRuntime{runResult: &runtime.RunResult{Status: "running", ContainerID: "c1", ContainerName: "team-team1", Route: "team1.apps.example.com", StartedAt: 42}}
	o := newOrchestrator(st, rt)

	app, err := o.DeployApplication(context.Background(), "job1", "team1", "", "alpine", "", "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.Status != string(domain.StatusRunning) {
		t.Errorf("expected running, got %s", app.Status)
	}
	if app.Subdomain != "team1" {
		t.Errorf("expected subdomain to default to team id, got %s", app.Subdomain)
	}
	if st.apps["team1"] == nil {
		t.Fatal("expected application to be persisted")
	}
	if len(rt.deleted) != 1 || rt.deleted[0] != "team-team1" {
		t.Errorf("expected a best-effort cleanup of any leftover container by name, got %v", rt.deleted)
	}
}

func TestDeployApplication_redeployAbortsOnRuntimeError(t *testing.T) {
	st := newFakeStore()
	st.apps["team1"] = &domain.Application{TeamID: "team1", Subdomain: "team1", ContainerID: "old-container"}
	rt := &fakeRuntime{deleteErr: apperrors.New(apperrors.CodeInternalRuntime, "docker daemon unreachable")}
	o := newOrchestrator(st, rt)

	_, err := o.DeployApplication(context.Background(), "job1", "team1", "team1", "alpine", "", "", true)
	if err == nil {
		t.Fatal("expected an error when the preflight cleanup hits a real runtime error")
	}
	e, ok := apperrors.As(err)
	if !ok || e.Code != apperrors.CodeInternalError {
		t.Errorf("expected InternalError, got %v", err)
	}
}

func TestDeployApplication_duplicateRejectedWithoutRedeploy(t *testing.T) {
	st := newFakeStore()
	st.apps["team1"] = &domain.Application{TeamID: "team1", Subdomain: "team1", ContainerID: "old"}
	rt := &fakeRuntime{}
	o := newOrchestrator(st, rt)

	_, err := o.DeployApplication(context.Background(), "job1", "team1", "team1", "alpine", "", "", false)
	if err == nil {
		t.Fatal("expected an error for duplicate deploy without redeploy")
	}
	e, ok := apperrors.As(err)
	if !ok || e.Code != apperrors.CodeInvalidParameter {
		t.Errorf("expected InvalidParameter, got %v", err)
	}
}

func TestDeployApplication_redeployCleansUpOldContainer(t *testing.T) {
	st := newFakeStore()
	st.apps["team1"] = &domain.Application{TeamID: "team1", Subdomain: "team1", ContainerID: "old-container"}
	rt := &fakeRuntime{runResult: &runtime.RunResult{Status: "running", ContainerID: "new-container"}}
	o := newOrchestrator(st, rt)

	_, err := o.DeployApplication(context.Background(), "job1", "team1", "team1", "alpine", "", "", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rt.deleted) != 2 || rt.deleted[0] != "old-container" || rt.deleted[1] != "team-team1" {
		t.Errorf("expected old container deleted by id then by name, got %v", rt.deleted)
	}
}

func TestDeployApplication_subdomainCollision(t *testing.T) {
	st := newFakeStore()
	st.subdomain["taken"] = true
	rt := &fakeRuntime{}
	o := newOrchestrator(st, rt)

	_, err := o.DeployApplication(context.Background(), "job1", "team1", "taken", "alpine", "", "", false)
	if err == nil {
		t.Fatal("expected subdomain collision error")
	}
	e, ok := apperrors.As(err)
	if !ok || e.Code != apperrors.CodeInvalidParameter {
		t.Errorf("expected InvalidParameter, got %v", err)
	}
}

func TestDeployApplication_containerStartFailurePreservesDetails(t *testing.T) {
	st := newFakeStore()
	rt := &fakeRuntime{runErr: apperrors.NewContainerStart("failed to start", "c1", "exited", "boom")}
	o := newOrchestrator(st, rt)

	app, err := o.DeployApplication(context.Background(), "job1", "team1", "", "alpine", "", "", false)
	if err == nil {
		t.Fatal("expected error")
	}
	if app.ContainerID != "c1" || app.Status != "exited" || app.Logs != "boom" {
		t.Errorf("expected container start details preserved, got %+v", app)
	}
}

func TestDeleteApplication_notFound(t *testing.T) {
	st := newFakeStore()
	o := newOrchestrator(st, &fakeRuntime{})

	err := o.DeleteApplication(context.Background(), "missing", false)
	e, ok := apperrors.As(err)
	if !ok || e.Code != apperrors.CodeNotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestDeleteAllApplications_attemptsEveryTeam(t *testing.T) {
	st := newFakeStore()
	st.apps["a"] = &domain.Application{TeamID: "a", Subdomain: "a"}
	st.apps["b"] = &domain.Application{TeamID: "b", Subdomain: "b", ContainerID: "bad"}
	rt := &fakeRuntime{deleteErr: apperrors.New(apperrors.CodeInternalRuntime, "boom")}
	o := newOrchestrator(st, rt)

	attempted, err := o.DeleteAllApplications(context.Background(), false)
	if len(attempted) != 2 {
		t.Errorf("expected both teams attempted regardless of failure, got %v", attempted)
	}
	if err == nil {
		t.Error("expected the aggregated error to be non-nil")
	}
}

func TestResumeStoppedContainers_skipsRecordsWithoutContainerID(t *testing.T) {
	st := newFakeStore()
	st.apps["a"] = &domain.Application{TeamID: "a", Subdomain: "a"}
	st.apps["b"] = &domain.Application{TeamID: "b", Subdomain: "b", ContainerID: "c-b"}
	rt := &fakeRuntime{}
	o := newOrchestrator(st, rt)

	if err := o.ResumeStoppedContainers(context.Background(), "job1", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.apps["a"].Status != "" {
		t.Errorf("expected team without container id to be left untouched, got status %q", st.apps["a"].Status)
	}
	if st.apps["b"].Status != string(domain.StatusRunning) {
		t.Errorf("expected team with container id to be resumed, got %q", st.apps["b"].Status)
	}
}
