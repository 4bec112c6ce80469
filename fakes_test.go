package tunbench

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// recordingShell is a [Shell] remembering the command lines.
type recordingShell struct {
	// fail makes commands containing this string fail.
	fail string

	mu       sync.Mutex
	commands []string
}

var errRecordingShell = errors.New("recording shell failure")

func (sh *recordingShell) Run(ctx context.Context, cmdline string) error {
	return sh.Runv(ctx, strings.Fields(cmdline))
}

func (sh *recordingShell) Runv(ctx context.Context, argv []string) error {
	_, err := sh.Outputv(ctx, argv)
	return err
}

func (sh *recordingShell) Outputv(ctx context.Context, argv []string) (string, error) {
	if len(argv) < 1 {
		return "", ErrNoCommandToExecute
	}
	cmdline := strings.Join(argv, " ")
	sh.mu.Lock()
	sh.commands = append(sh.commands, cmdline)
	sh.mu.Unlock()
	if sh.fail != "" && strings.Contains(cmdline, sh.fail) {
		return "", errRecordingShell
	}
	return "", nil
}

func (sh *recordingShell) Commands() []string {
	defer sh.mu.Unlock()
	sh.mu.Lock()
	return append([]string{}, sh.commands...)
}

// fakeDaemons is a [DaemonControl] keeping per-endpoint files and
// services in memory.
type fakeDaemons struct {
	// failures maps an operation name (e.g., "StartService") to an error.
	failures map[string]error

	mu      sync.Mutex
	files   map[string]string
	running map[string]bool
	calls   []string
}

func newFakeDaemons() *fakeDaemons {
	return &fakeDaemons{
		failures: map[string]error{},
		files:    map[string]string{},
		running:  map[string]bool{},
	}
}

func (fd *fakeDaemons) record(op, endpoint, what string) error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.calls = append(fd.calls, op+" "+endpoint+" "+what)
	return fd.failures[op]
}

func (fd *fakeDaemons) RemoveConfig(ctx context.Context, endpoint, filename string) error {
	if err := fd.record("RemoveConfig", endpoint, filename); err != nil {
		return err
	}
	fd.mu.Lock()
	delete(fd.files, endpoint+":"+filename)
	fd.mu.Unlock()
	return nil
}

func (fd *fakeDaemons) WriteConfig(ctx context.Context, endpoint, filename, text string) error {
	if err := fd.record("WriteConfig", endpoint, filename); err != nil {
		return err
	}
	fd.mu.Lock()
	fd.files[endpoint+":"+filename] = text
	fd.mu.Unlock()
	return nil
}

func (fd *fakeDaemons) setRunning(endpoint, what string, value bool) {
	fd.mu.Lock()
	fd.running[endpoint+":"+what] = value
	fd.mu.Unlock()
}

func (fd *fakeDaemons) StartService(ctx context.Context, endpoint, service string) error {
	if err := fd.record("StartService", endpoint, service); err != nil {
		return err
	}
	fd.setRunning(endpoint, service, true)
	return nil
}

func (fd *fakeDaemons) StopService(ctx context.Context, endpoint, service string) error {
	if err := fd.record("StopService", endpoint, service); err != nil {
		return err
	}
	fd.setRunning(endpoint, service, false)
	return nil
}

func (fd *fakeDaemons) StartDial(ctx context.Context, endpoint, peer string) error {
	if err := fd.record("StartDial", endpoint, peer); err != nil {
		return err
	}
	fd.setRunning(endpoint, peer, true)
	return nil
}

func (fd *fakeDaemons) StopDial(ctx context.Context, endpoint, peer string) error {
	if err := fd.record("StopDial", endpoint, peer); err != nil {
		return err
	}
	fd.setRunning(endpoint, peer, false)
	return nil
}

func (fd *fakeDaemons) Files() map[string]string {
	defer fd.mu.Unlock()
	fd.mu.Lock()
	out := map[string]string{}
	for k, v := range fd.files {
		out[k] = v
	}
	return out
}

func (fd *fakeDaemons) Calls() []string {
	defer fd.mu.Unlock()
	fd.mu.Lock()
	return append([]string{}, fd.calls...)
}

var _ DaemonControl = &fakeDaemons{}

// fakeConfigurer is a [LinkConfigurer] that fails for some links.
type fakeConfigurer struct {
	// fail contains the names of the links to fail.
	fail map[string]bool

	mu      sync.Mutex
	applied map[string][]LinkParams
}

func newFakeConfigurer(fail ...string) *fakeConfigurer {
	fc := &fakeConfigurer{fail: map[string]bool{}, applied: map[string][]LinkParams{}}
	for _, name := range fail {
		fc.fail[name] = true
	}
	return fc
}

var errFakeConfigurer = errors.New("cannot configure link")

func (fc *fakeConfigurer) ConfigureLink(ctx context.Context, lnk *Link, params LinkParams) error {
	if fc.fail[lnk.Name] {
		return errFakeConfigurer
	}
	fc.mu.Lock()
	fc.applied[lnk.Name] = append(fc.applied[lnk.Name], params)
	fc.mu.Unlock()
	return nil
}

func (fc *fakeConfigurer) Applied(name string) []LinkParams {
	defer fc.mu.Unlock()
	fc.mu.Lock()
	return append([]LinkParams{}, fc.applied[name]...)
}
