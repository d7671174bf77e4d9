// Package orchestrator is the command interface presentation layers use.
//
// It coordinates the registry, the launch profile store, the builder and the
// supervisor, keeps one immutable snapshot per tracked project, and publishes
// the full list after every transition.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/harshul/microrun/internal/build"
	"github.com/harshul/microrun/internal/failure"
	"github.com/harshul/microrun/internal/launchsettings"
	"github.com/harshul/microrun/internal/project"
	"github.com/harshul/microrun/internal/registry"
	"github.com/harshul/microrun/internal/supervisor"
)

// ProfileLoader reads the launch profiles of a project file.
type ProfileLoader func(projectFile string) (launchsettings.Set, error)

// Options controls how the orchestrator is wired.
type Options struct {
	RegistryPath string
	Supervisor   supervisor.Options
	Builder      build.Builder // nil uses a default dotnet builder
	LoadProfiles ProfileLoader // nil uses launchsettings.Load
	Logger       *slog.Logger
	Concurrency  int // parallel preparations in StartAll
}

type Orchestrator struct {
	opts    Options
	log     *slog.Logger
	reg     *registry.Registry
	sup     *supervisor.Supervisor
	builder build.Builder
	load    ProfileLoader

	mu       sync.Mutex
	snaps    map[string]project.Snapshot
	sets     map[string]launchsettings.Set
	inflight map[string]bool
	subs     map[int]chan []project.Snapshot
	nextSub  int
}

// New opens the registry and builds the supervisor. Call Load to read the
// launch profiles of the registered projects.
func New(opts Options) (*Orchestrator, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	o := &Orchestrator{
		opts:     opts,
		log:      opts.Logger.With("component", "orchestrator"),
		builder:  opts.Builder,
		load:     opts.LoadProfiles,
		snaps:    make(map[string]project.Snapshot),
		sets:     make(map[string]launchsettings.Set),
		inflight: make(map[string]bool),
		subs:     make(map[int]chan []project.Snapshot),
	}
	if o.builder == nil {
		o.builder = build.NewDotNet(build.Options{Logger: opts.Logger})
	}
	if o.load == nil {
		o.load = launchsettings.Load
	}

	supOpts := opts.Supervisor
	if supOpts.Logger == nil {
		supOpts.Logger = opts.Logger
	}
	onExit := supOpts.OnExit
	supOpts.OnExit = func(id string, err error) {
		o.handleExit(id, err)
		if onExit != nil {
			onExit(id, err)
		}
	}
	o.sup = supervisor.New(supOpts)

	reg, err := registry.Open(opts.RegistryPath, registry.Options{Stopper: o.sup, Logger: opts.Logger})
	if err != nil {
		return nil, err
	}
	o.reg = reg

	for _, rec := range reg.List() {
		o.snaps[rec.FilePath] = newSnapshot(rec)
	}
	return o, nil
}

func newSnapshot(rec registry.Record) project.Snapshot {
	return project.Snapshot{
		ID:              rec.FilePath,
		FilePath:        rec.FilePath,
		SelectedProfile: rec.SelectedConfiguration,
		BatchSelected:   rec.IsChecked,
		State:           project.Stopped,
	}
}

// Supervisor exposes the process table for read-only use such as handles.
func (o *Orchestrator) Supervisor() *supervisor.Supervisor { return o.sup }

// RegistryPath is the file the project list is stored in.
func (o *Orchestrator) RegistryPath() string { return o.reg.Path() }

// Load reads the launch profiles of every registered project. Failures are
// recorded on the project snapshots.
func (o *Orchestrator) Load(ctx context.Context) {
	ids := o.ids()
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := o.reload(id); err != nil {
				o.log.Warn("load profiles failed", "project", id, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) ids() []string {
	records := o.reg.List()
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.FilePath
	}
	return ids
}

// reload parses the launch settings of id. On failure the previous profile
// set and selection stay in place. A missing or stale selection falls back
// to the first declared profile and is persisted.
func (o *Orchestrator) reload(id string) (launchsettings.Set, error) {
	set, loadErr := o.load(id)

	o.mu.Lock()
	snap, ok := o.snaps[id]
	if !ok {
		o.mu.Unlock()
		return launchsettings.Set{}, failure.New(failure.NotTracked, id, nil)
	}
	if loadErr != nil {
		o.snaps[id] = snap.Apply(project.Event{Kind: project.EventProfilesFailed, Err: loadErr})
		o.publishLocked()
		o.mu.Unlock()
		return launchsettings.Set{}, loadErr
	}

	selected := snap.SelectedProfile
	if _, exists := set.Get(selected); !exists {
		selected = ""
		if first, ok := set.First(); ok {
			selected = first.Name
		}
	}
	changed := selected != snap.SelectedProfile
	o.sets[id] = set
	o.snaps[id] = snap.Apply(project.Event{Kind: project.EventProfilesLoaded, Profiles: set.Names(), Profile: selected})
	o.publishLocked()
	o.mu.Unlock()

	if changed {
		if err := o.reg.UpdateSelection(id, selected); err != nil {
			o.log.Warn("persist default selection failed", "project", id, "err", err)
		}
	}
	return set, nil
}

// ReloadProfiles reads the launch settings of id again.
func (o *Orchestrator) ReloadProfiles(id string) error {
	_, err := o.reload(id)
	return err
}

// AddProject tracks a project file and loads its profiles. A profile load
// failure is recorded on the returned snapshot and does not fail the add.
func (o *Orchestrator) AddProject(filePath string) (project.Snapshot, error) {
	id, err := project.ID(filePath)
	if err != nil {
		return project.Snapshot{}, err
	}
	if info, err := os.Stat(id); err != nil {
		return project.Snapshot{}, fmt.Errorf("project file: %w", err)
	} else if info.IsDir() {
		return project.Snapshot{}, fmt.Errorf("project file: %s is a directory", id)
	}

	rec, err := o.reg.Add(id)
	if err != nil && !errors.Is(err, failure.PersistenceFailed) {
		return project.Snapshot{}, err
	}
	o.mu.Lock()
	o.snaps[rec.FilePath] = newSnapshot(rec)
	o.publishLocked()
	o.mu.Unlock()

	_, _ = o.reload(rec.FilePath)
	snap, _ := o.Project(rec.FilePath)
	return snap, err
}

// starting fails with AlreadyRunning while a start of id is in flight. The
// process of such a start has no handle yet, so it cannot be stopped.
func (o *Orchestrator) starting(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[id] {
		return failure.Newf(failure.AlreadyRunning, id, "start in progress")
	}
	return nil
}

// RemoveProject stops the project's process and stops tracking it.
func (o *Orchestrator) RemoveProject(ctx context.Context, id string) error {
	if err := o.starting(id); err != nil {
		return err
	}
	err := o.reg.Remove(ctx, id)
	if err != nil && !errors.Is(err, failure.PersistenceFailed) {
		return err
	}
	o.mu.Lock()
	delete(o.snaps, id)
	delete(o.sets, id)
	o.publishLocked()
	o.mu.Unlock()
	return err
}

// SetProjectPath points a tracked entry at another project file.
func (o *Orchestrator) SetProjectPath(ctx context.Context, id, newPath string) (project.Snapshot, error) {
	if info, err := os.Stat(newPath); err != nil {
		return project.Snapshot{}, fmt.Errorf("project file: %w", err)
	} else if info.IsDir() {
		return project.Snapshot{}, fmt.Errorf("project file: %s is a directory", newPath)
	}
	if err := o.starting(id); err != nil {
		return project.Snapshot{}, err
	}
	rec, err := o.reg.Replace(ctx, id, newPath)
	if err != nil && !errors.Is(err, failure.PersistenceFailed) {
		return project.Snapshot{}, err
	}
	o.mu.Lock()
	delete(o.snaps, id)
	delete(o.sets, id)
	o.snaps[rec.FilePath] = newSnapshot(rec)
	o.publishLocked()
	o.mu.Unlock()

	_, _ = o.reload(rec.FilePath)
	snap, _ := o.Project(rec.FilePath)
	return snap, err
}

// SelectConfiguration selects the launch profile used by the next start.
func (o *Orchestrator) SelectConfiguration(id, profile string) error {
	o.mu.Lock()
	snap, ok := o.snaps[id]
	if !ok {
		o.mu.Unlock()
		return failure.New(failure.NotTracked, id, nil)
	}
	if _, exists := o.sets[id].Get(profile); !exists {
		o.mu.Unlock()
		return failure.Newf(failure.NoProfileSelected, id, "profile %q does not exist", profile)
	}
	o.snaps[id] = snap.Apply(project.Event{Kind: project.EventSelectionChanged, Profile: profile})
	o.publishLocked()
	o.mu.Unlock()

	return o.reg.UpdateSelection(id, profile)
}

// SetBatchSelected includes or excludes id from StartAll and StopAll.
func (o *Orchestrator) SetBatchSelected(id string, checked bool) error {
	o.mu.Lock()
	snap, ok := o.snaps[id]
	if !ok {
		o.mu.Unlock()
		return failure.New(failure.NotTracked, id, nil)
	}
	o.snaps[id] = snap.Apply(project.Event{Kind: project.EventBatchToggled, Checked: checked})
	o.publishLocked()
	o.mu.Unlock()

	return o.reg.SetBatchSelected(id, checked)
}

// claim marks id as having a start in flight.
func (o *Orchestrator) claim(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap, ok := o.snaps[id]
	if !ok {
		return failure.New(failure.NotTracked, id, nil)
	}
	if o.inflight[id] || snap.State.Busy() {
		return failure.Newf(failure.AlreadyRunning, id, "start in progress")
	}
	if snap.State == project.Running && o.sup.Status(id) == project.Running {
		return failure.Newf(failure.AlreadyRunning, id, "pid %d", snap.PID)
	}
	o.inflight[id] = true
	o.snaps[id] = snap.Apply(project.Event{Kind: project.EventLoading, Loading: true})
	o.publishLocked()
	return nil
}

// prepare re-reads the selected profile and builds the project when its
// profile runs the artifact.
func (o *Orchestrator) prepare(ctx context.Context, id string) (supervisor.Request, error) {
	set, err := o.reload(id)
	if err != nil {
		return supervisor.Request{}, err
	}
	snap, _ := o.Project(id)
	if snap.SelectedProfile == "" {
		return supervisor.Request{}, failure.New(failure.NoProfileSelected, id, nil)
	}
	profile, ok := set.Get(snap.SelectedProfile)
	if !ok {
		return supervisor.Request{}, failure.Newf(failure.NoProfileSelected, id, "profile %q does not exist", snap.SelectedProfile)
	}

	req := supervisor.Request{Project: id, Profile: profile}
	switch profile.Kind {
	case launchsettings.RunAsProcess:
		o.apply(id, project.Event{Kind: project.EventBuildStarted})
		if err := o.builder.Build(ctx, id); err != nil {
			return supervisor.Request{}, err
		}
		artifact, err := o.builder.ArtifactPath(id)
		if err != nil {
			return supervisor.Request{}, err
		}
		if _, err := os.Stat(artifact); err != nil {
			return supervisor.Request{}, failure.Newf(failure.BuildFailed, id, "artifact %s: %w", artifact, err)
		}
		req.Artifact = artifact
	case launchsettings.RunUnderIISExpress:
	default:
		return supervisor.Request{}, failure.Newf(failure.UnsupportedCommandKind, id, "commandName %q in profile %q", profile.CommandName, profile.Name)
	}
	o.apply(id, project.Event{Kind: project.EventLaunchStarted})
	return req, nil
}

// finish records the outcome of a start and releases the claim. A process
// whose project stopped being tracked meanwhile is stopped.
func (o *Orchestrator) finish(id string, h *supervisor.Handle, err error) {
	o.mu.Lock()
	delete(o.inflight, id)
	snap, ok := o.snaps[id]
	if !ok {
		o.mu.Unlock()
		if h != nil && !h.Exited() {
			o.log.Warn("stopping process of untracked project", "project", id, "pid", h.PID)
			if err := o.sup.Stop(context.Background(), id); err != nil {
				o.log.Warn("stop untracked project failed", "project", id, "err", err)
			}
		}
		return
	}
	defer o.mu.Unlock()
	switch {
	case err != nil:
		o.snaps[id] = snap.Apply(project.Event{Kind: project.EventFailed, Err: err})
	case h == nil:
		o.snaps[id] = snap.Apply(project.Event{Kind: project.EventStopped})
	case h.Exited():
		o.snaps[id] = snap.Apply(project.Event{Kind: project.EventStopped, Err: exitError(id, h.Err())})
	default:
		o.snaps[id] = snap.Apply(project.Event{Kind: project.EventStarted, PID: h.PID})
	}
	o.publishLocked()
}

// Start builds (when needed) and launches the selected profile of id.
func (o *Orchestrator) Start(ctx context.Context, id string) error {
	if err := o.claim(id); err != nil {
		return err
	}
	req, err := o.prepare(ctx, id)
	if err != nil {
		o.finish(id, nil, err)
		return err
	}
	h, err := o.sup.Start(ctx, req)
	o.finish(id, h, err)
	if _, ok := o.Project(id); ok || err != nil {
		return err
	}
	return failure.Newf(failure.NotTracked, id, "removed while starting")
}

// Stop terminates the process of id. Stopping a stopped project is a no-op;
// a project that is still building or starting cannot be stopped.
func (o *Orchestrator) Stop(ctx context.Context, id string) error {
	if _, ok := o.Project(id); !ok {
		return failure.New(failure.NotTracked, id, nil)
	}
	if err := o.starting(id); err != nil {
		return err
	}
	err := o.sup.Stop(ctx, id)
	o.apply(id, project.Event{Kind: project.EventStopped, Err: err})
	return err
}

// Toggle stops a running project and starts a stopped one.
func (o *Orchestrator) Toggle(ctx context.Context, id string) error {
	if o.sup.Status(id) == project.Running {
		return o.Stop(ctx, id)
	}
	return o.Start(ctx, id)
}

// StartAll starts every batch-selected project that is not running.
// Preparations run in parallel; failures are isolated per project.
func (o *Orchestrator) StartAll(ctx context.Context) []project.Result {
	return o.StartProjects(ctx, o.checked())
}

func (o *Orchestrator) checked() []string {
	var ids []string
	for _, snap := range o.Projects() {
		if snap.BatchSelected {
			ids = append(ids, snap.ID)
		}
	}
	return ids
}

// StartProjects starts ids the way StartAll starts the checked projects.
// Running ids are skipped; untracked ids fail with NotTracked.
func (o *Orchestrator) StartProjects(ctx context.Context, ids []string) []project.Result {
	var results []project.Result
	var claimed []string
	for _, id := range ids {
		if err := o.claim(id); err != nil {
			results = append(results, project.Result{ID: id, Skipped: errors.Is(err, failure.AlreadyRunning), Err: ignoreRunning(err)})
			continue
		}
		claimed = append(claimed, id)
	}

	reqs := make([]supervisor.Request, len(claimed))
	errs := make([]error, len(claimed))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)
	for i, id := range claimed {
		g.Go(func() error {
			reqs[i], errs[i] = o.prepare(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	var ready []supervisor.Request
	for i, id := range claimed {
		if errs[i] != nil {
			o.finish(id, nil, errs[i])
			results = append(results, project.Result{ID: id, Err: errs[i]})
			continue
		}
		ready = append(ready, reqs[i])
	}

	for _, r := range o.sup.StartAll(ctx, ready) {
		var h *supervisor.Handle
		if r.Err == nil {
			h, _ = o.sup.Handle(r.ID)
		}
		o.finish(r.ID, h, r.Err)
		results = append(results, r)
	}
	return results
}

func ignoreRunning(err error) error {
	if errors.Is(err, failure.AlreadyRunning) {
		return nil
	}
	return err
}

// StopAll stops every batch-selected project that is running.
func (o *Orchestrator) StopAll(ctx context.Context) []project.Result {
	return o.StopProjects(ctx, o.checked())
}

// StopProjects stops ids; ids that are not running, or still starting, are
// skipped.
func (o *Orchestrator) StopProjects(ctx context.Context, ids []string) []project.Result {
	var pending []project.Result
	var stoppable []string
	for _, id := range ids {
		if o.starting(id) != nil {
			pending = append(pending, project.Result{ID: id, Skipped: true})
			continue
		}
		stoppable = append(stoppable, id)
	}
	results := o.sup.StopAll(ctx, stoppable)
	for _, r := range results {
		if !r.Skipped {
			o.apply(r.ID, project.Event{Kind: project.EventStopped, Err: r.Err})
		}
	}
	return append(results, pending...)
}

// Usage samples the resources of the running process of id.
func (o *Orchestrator) Usage(id string) (project.Usage, error) {
	return o.sup.Usage(id)
}

// Shutdown stops every running process.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	err := o.sup.Shutdown(ctx)
	o.mu.Lock()
	for id, snap := range o.snaps {
		if snap.State == project.Running {
			o.snaps[id] = snap.Apply(project.Event{Kind: project.EventStopped})
		}
	}
	o.publishLocked()
	o.mu.Unlock()
	return err
}

// handleExit reconciles a process that ended outside of Stop.
func (o *Orchestrator) handleExit(id string, err error) {
	if _, live := o.sup.Handle(id); live {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	snap, ok := o.snaps[id]
	if !ok || o.inflight[id] || snap.State != project.Running {
		return
	}
	o.snaps[id] = snap.Apply(project.Event{Kind: project.EventStopped, Err: exitError(id, err)})
	o.publishLocked()
	o.log.Info("project exited", "project", id, "err", err)
}

func exitError(id string, err error) error {
	if err == nil {
		return nil
	}
	return failure.New(failure.LaunchFailed, id, fmt.Errorf("process exited: %w", err))
}

func (o *Orchestrator) apply(id string, e project.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap, ok := o.snaps[id]
	if !ok {
		return
	}
	o.snaps[id] = snap.Apply(e)
	o.publishLocked()
}

// Projects returns the snapshots in registry order.
func (o *Orchestrator) Projects() []project.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.listLocked()
}

// Project returns the snapshot of id.
func (o *Orchestrator) Project(id string) (project.Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap, ok := o.snaps[id]
	return snap, ok
}

// Profiles returns the last loaded profile set of id.
func (o *Orchestrator) Profiles(id string) (launchsettings.Set, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	set, ok := o.sets[id]
	return set, ok
}

func (o *Orchestrator) listLocked() []project.Snapshot {
	out := make([]project.Snapshot, 0, len(o.snaps))
	for _, id := range o.ids() {
		if snap, ok := o.snaps[id]; ok {
			out = append(out, snap)
		}
	}
	return out
}

// Subscribe returns a stream of project lists. Only the latest list is
// buffered; a slow reader skips intermediate states. The current list is
// delivered immediately.
func (o *Orchestrator) Subscribe() (<-chan []project.Snapshot, func()) {
	ch := make(chan []project.Snapshot, 1)
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.listLocked()
	o.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			close(ch)
			o.mu.Unlock()
		})
	}
	return ch, cancel
}

func (o *Orchestrator) publishLocked() {
	if len(o.subs) == 0 {
		return
	}
	list := o.listLocked()
	for _, ch := range o.subs {
		select {
		case ch <- list:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- list:
			default:
			}
		}
	}
}
