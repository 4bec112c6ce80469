package tunbench

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// recordingExecutor is an [Executor] remembering the command lines.
type recordingExecutor struct {
	err      error
	mu       sync.Mutex
	commands []string
}

func (re *recordingExecutor) Run(ctx context.Context, endpoint, cmdline string) (string, error) {
	re.mu.Lock()
	re.commands = append(re.commands, endpoint+": "+cmdline)
	re.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return "", errors.New("missing deadline")
	}
	return "", re.err
}

func TestShellDaemonControl(t *testing.T) {
	executor := &recordingExecutor{}
	dc := &ShellDaemonControl{
		CallTimeout: time.Second,
		Executor:    executor,
		Logger:      &NullLogger{},
	}
	ctx := context.Background()
	steps := []error{
		dc.RemoveConfig(ctx, "h1", "/etc/pptpd.conf"),
		dc.WriteConfig(ctx, "h1", "/etc/ppp/peers/pptpclient", "name it's\n"),
		dc.StartService(ctx, "h2", "pptpd"),
		dc.StopService(ctx, "h2", "pptpd"),
		dc.StartDial(ctx, "h1", "pptpclient"),
		dc.StopDial(ctx, "h1", "pptpclient"),
	}
	for idx, err := range steps {
		if err != nil {
			t.Fatal(idx, err)
		}
	}
	expect := []string{
		"h1: rm -f '/etc/pptpd.conf'",
		`h1: mkdir -p '/etc/ppp/peers' && printf '%s' 'name it'\''s` + "\n" + `' > '/etc/ppp/peers/pptpclient'`,
		"h2: service 'pptpd' restart",
		"h2: service 'pptpd' stop",
		"h1: pon 'pptpclient'",
		"h1: poff 'pptpclient'",
	}
	if diff := cmp.Diff(expect, executor.commands); diff != "" {
		t.Fatal(diff)
	}
}

func TestShellDaemonControlDefaultTimeout(t *testing.T) {
	executor := &recordingExecutor{}
	dc := &ShellDaemonControl{
		Executor: executor,
		Logger:   &NullLogger{},
	}
	// the executor fails when the context has no deadline
	if err := dc.StopService(context.Background(), "h2", "xl2tpd"); err != nil {
		t.Fatal(err)
	}
}

func TestShellDaemonControlFailure(t *testing.T) {
	expected := errors.New("mocked error")
	dc := &ShellDaemonControl{
		CallTimeout: time.Second,
		Executor:    &recordingExecutor{err: expected},
		Logger:      &NullLogger{},
	}
	err := dc.StartService(context.Background(), "h2", "xl2tpd")
	if !errors.Is(err, expected) {
		t.Fatal("unexpected error", err)
	}
	if err.Error() != "h2: mocked error" {
		t.Fatal("error should name the endpoint", err)
	}
}
