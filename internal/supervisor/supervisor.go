// Package supervisor owns the child processes of tracked projects.
//
// It is the only code that spawns or kills a project's process. Every project
// id maps to at most one Handle; start, stop and status for the same id are
// serialized by a per-id lock while different ids proceed in parallel.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sync/errgroup"

	"github.com/harshul/microrun/internal/browser"
	"github.com/harshul/microrun/internal/failure"
	"github.com/harshul/microrun/internal/launchsettings"
	"github.com/harshul/microrun/internal/ports"
	"github.com/harshul/microrun/internal/project"
)

const (
	// DefaultRuntimeHost loads built artifacts.
	DefaultRuntimeHost = "dotnet"
	// DefaultIISExpressURL is used by IIS Express profiles that declare no URL.
	DefaultIISExpressURL = "http://localhost:8080"
	// DefaultGracePeriod is how long a stopped process may take to exit
	// before it is killed.
	DefaultGracePeriod = 5 * time.Second
)

// Request describes one launch.
type Request struct {
	Project  string // project id
	Profile  launchsettings.Profile
	Artifact string // built output loaded by the runtime host; RunAsProcess only
}

// Options configures a Supervisor.
type Options struct {
	Logger *slog.Logger

	// RuntimeHost is prepended to the artifact path. Empty runs the artifact
	// directly.
	RuntimeHost string
	// LocateIISExpress returns the IIS Express executable. Nil means IIS
	// Express is never available.
	LocateIISExpress func() (string, error)

	Browser       browser.Opener
	BrowserPolicy browser.Policy

	// Output returns the writer for a project's stdout and stderr. Nil or a
	// nil writer discards output.
	Output func(id string) io.Writer
	// OnExit is called from the process watcher after a process exits, both
	// for crashes and for stops.
	OnExit func(id string, err error)

	GracePeriod time.Duration
	Concurrency int // batch fan-out; <= 0 means runtime.NumCPU()
}

// Handle is a live (or just exited) child process.
type Handle struct {
	ID        string
	PID       int
	Profile   string
	Kind      launchsettings.CommandKind
	URL       string
	Args      []string
	StartedAt time.Time

	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Done is closed once the process has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Exited reports whether the process has exited.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Err is the process exit error. It is only meaningful after Done.
func (h *Handle) Err() error {
	if !h.Exited() {
		return nil
	}
	return h.err
}

// Supervisor is the per-project handle table.
type Supervisor struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
	locks   map[string]*sync.Mutex
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	if opts.BrowserPolicy == "" {
		opts.BrowserPolicy = browser.PolicyProfile
	}
	return &Supervisor{
		opts:    opts,
		log:     opts.Logger.With("component", "supervisor"),
		handles: make(map[string]*Handle),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Supervisor) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// reconcile drops the handle of a process that exited on its own and returns
// the live handle, if any. Callers hold the id lock.
func (s *Supervisor) reconcile(id string) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	if !ok {
		return nil
	}
	if h.Exited() {
		delete(s.handles, id)
		s.log.Debug("reconciled exited process", "project", id, "pid", h.PID, "err", h.err)
		return nil
	}
	return h
}

// Start launches req. It fails with AlreadyRunning when id has a live
// process, and never leaves a handle behind on failure.
func (s *Supervisor) Start(ctx context.Context, req Request) (*Handle, error) {
	id := req.Project
	if id == "" {
		return nil, failure.Newf(failure.LaunchFailed, "", "empty project id")
	}

	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if h := s.reconcile(id); h != nil {
		return nil, failure.Newf(failure.AlreadyRunning, id, "pid %d", h.PID)
	}
	if req.Profile.Name == "" {
		return nil, failure.New(failure.NoProfileSelected, id, nil)
	}

	cmd, url, err := s.command(req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, failure.New(failure.LaunchFailed, id, err)
	}

	if url != "" {
		if port, err := ports.PortFromURL(url); err == nil && !ports.IsPortAvailable(port) {
			s.log.Warn("port already in use", "project", id, "port", port)
		}
	}

	var out io.Writer = io.Discard
	if s.opts.Output != nil {
		if w := s.opts.Output(id); w != nil {
			out = w
		}
	}
	cmd.Stdout = out
	cmd.Stderr = out
	configureProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, failure.New(failure.LaunchFailed, id, err)
	}

	h := &Handle{
		ID:        id,
		PID:       cmd.Process.Pid,
		Profile:   req.Profile.Name,
		Kind:      req.Profile.Kind,
		URL:       url,
		Args:      cmd.Args,
		StartedAt: time.Now(),
		cmd:       cmd,
		done:      make(chan struct{}),
	}
	s.mu.Lock()
	s.handles[id] = h
	s.mu.Unlock()

	go s.wait(h)

	s.log.Info("process started", "project", id, "profile", h.Profile, "pid", h.PID, "kind", h.Kind.String())
	s.maybeOpenBrowser(req.Profile, url)
	return h, nil
}

func (s *Supervisor) wait(h *Handle) {
	h.err = h.cmd.Wait()
	close(h.done)
	s.log.Info("process exited", "project", h.ID, "pid", h.PID, "err", h.err)
	if s.opts.OnExit != nil {
		s.opts.OnExit(h.ID, h.err)
	}
}

func (s *Supervisor) maybeOpenBrowser(profile launchsettings.Profile, listenURL string) {
	if s.opts.Browser == nil || !s.opts.BrowserPolicy.ShouldOpen(profile.LaunchBrowser) {
		return
	}
	target := profile.BrowseURL()
	if target == "" {
		target = listenURL
	}
	if target == "" {
		return
	}
	if err := s.opts.Browser.Open(target); err != nil {
		s.log.Warn("open browser failed", "url", target, "err", err)
	}
}

// command builds the process for req and returns the URL it listens on.
func (s *Supervisor) command(req Request) (*exec.Cmd, string, error) {
	id := req.Project
	profile := req.Profile
	dir := project.Dir(id)

	switch profile.Kind {
	case launchsettings.RunAsProcess:
		if req.Artifact == "" {
			return nil, "", failure.Newf(failure.LaunchFailed, id, "no artifact to run")
		}
		args, err := shellquote.Split(profile.CommandLineArgs)
		if err != nil {
			return nil, "", failure.New(failure.LaunchFailed, id, fmt.Errorf("commandLineArgs: %w", err))
		}
		argv := []string{req.Artifact}
		if s.opts.RuntimeHost != "" {
			argv = append([]string{s.opts.RuntimeHost}, argv...)
		}
		argv = append(argv, args...)

		url := profile.ListenURL()
		extra := map[string]string{}
		if profile.ApplicationURL != "" {
			extra["ASPNETCORE_URLS"] = profile.ApplicationURL
		}
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Dir = dir
		cmd.Env = buildEnvironment(profile.EnvironmentVariables, extra)
		return cmd, url, nil

	case launchsettings.RunUnderIISExpress:
		if s.opts.LocateIISExpress == nil {
			return nil, "", failure.Newf(failure.MissingDependency, id, "IIS Express is not available")
		}
		host, err := s.opts.LocateIISExpress()
		if err != nil {
			return nil, "", failure.New(failure.MissingDependency, id, err)
		}
		url := profile.ListenURL()
		if url == "" {
			url = DefaultIISExpressURL
		}
		port, err := ports.PortFromURL(url)
		if err != nil {
			return nil, "", failure.New(failure.LaunchFailed, id, err)
		}
		cmd := exec.Command(host, "/path:"+dir, "/port:"+strconv.Itoa(port))
		cmd.Dir = dir
		cmd.Env = buildEnvironment(profile.EnvironmentVariables, nil)
		return cmd, url, nil

	default:
		return nil, "", failure.Newf(failure.UnsupportedCommandKind, id, "commandName %q in profile %q", profile.CommandName, profile.Name)
	}
}

// buildEnvironment merges os.Environ, the profile environment and extra, in
// increasing precedence, sorted by key.
func buildEnvironment(profileEnv, extra map[string]string) []string {
	envMap := make(map[string]string)
	for _, kv := range os.Environ() {
		if idx := strings.Index(kv, "="); idx > 0 {
			envMap[kv[:idx]] = kv[idx+1:]
		}
	}
	for k, v := range profileEnv {
		envMap[k] = v
	}
	for k, v := range extra {
		envMap[k] = v
	}

	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(envMap))
	for _, k := range keys {
		env = append(env, k+"="+envMap[k])
	}
	return env
}

// Stop terminates the process of id. Stopping an id with no live process is a
// no-op. The handle is removed before the process is signalled, so Status
// reports Stopped as soon as Stop returns.
func (s *Supervisor) Stop(ctx context.Context, id string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	h, ok := s.handles[id]
	delete(s.handles, id)
	s.mu.Unlock()

	if !ok || h.Exited() {
		return nil
	}
	if err := terminate(h, s.opts.GracePeriod); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.log.Warn("stop failed", "project", id, "pid", h.PID, "err", err)
		return fmt.Errorf("stop %s: %w", project.Name(id), err)
	}
	s.log.Info("process stopped", "project", id, "pid", h.PID)
	return nil
}

// Status reports Running when id has a live process and Stopped otherwise.
func (s *Supervisor) Status(id string) project.RunState {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()
	if s.reconcile(id) != nil {
		return project.Running
	}
	return project.Stopped
}

// Handle returns the live handle of id.
func (s *Supervisor) Handle(id string) (*Handle, bool) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()
	h := s.reconcile(id)
	return h, h != nil
}

// Handles returns the live handles ordered by id.
func (s *Supervisor) Handles() []*Handle {
	s.mu.Lock()
	out := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		if !h.Exited() {
			out = append(out, h)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StartAll starts every request whose project is not running. Failures are
// isolated per project; results keep the order of reqs.
func (s *Supervisor) StartAll(ctx context.Context, reqs []Request) []project.Result {
	results := make([]project.Result, len(reqs))
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = project.Result{ID: req.Project}
			if s.Status(req.Project) == project.Running {
				results[i].Skipped = true
				return nil
			}
			if _, err := s.Start(ctx, req); err != nil {
				if errors.Is(err, failure.AlreadyRunning) {
					results[i].Skipped = true
					return nil
				}
				results[i].Err = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// StopAll stops every running project in ids.
func (s *Supervisor) StopAll(ctx context.Context, ids []string) []project.Result {
	results := make([]project.Result, len(ids))
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = project.Result{ID: id}
			if s.Status(id) != project.Running {
				results[i].Skipped = true
				return nil
			}
			results[i].Err = s.Stop(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Usage samples CPU and memory of the live process of id.
func (s *Supervisor) Usage(id string) (project.Usage, error) {
	h, ok := s.Handle(id)
	if !ok {
		return project.Usage{}, failure.Newf(failure.NotTracked, id, "not running")
	}
	usage := project.Usage{PID: h.PID, StartedAt: h.StartedAt}
	proc, err := process.NewProcess(int32(h.PID))
	if err != nil {
		return usage, err
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		usage.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		usage.RSS = mem.RSS
	}
	return usage, nil
}

// Shutdown stops all processes and waits until they exit or ctx is done.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	handles := s.Handles()
	ids := make([]string, len(handles))
	for i, h := range handles {
		ids[i] = h.ID
	}
	var errs []error
	for _, r := range s.StopAll(ctx, ids) {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
			return errors.Join(errs...)
		}
	}
	return errors.Join(errs...)
}
