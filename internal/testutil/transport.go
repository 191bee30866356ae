package testutil

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/specialistvlad/convergo/internal/transport"
)

// Response is a scripted answer of FakeTransport.
type Response struct {
	Stdout string
	Stderr string
	Code   int
	Err    error
	Delay  time.Duration
}

// Call records one command seen by FakeTransport.
type Call struct {
	Node    string
	Command string
	Start   time.Time
	End     time.Time
}

type rule struct {
	match func(node, command string) bool
	resp  Response
}

// FakeTransport is a scripted transport.Transport. Commands without a
// matching rule succeed with empty output.
type FakeTransport struct {
	mu       sync.Mutex
	rules    []rule
	calls    []Call
	uploads  map[string]string
	files    map[string]string
	inflight int
	peak     int
}

// NewFakeTransport creates an empty fake.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{uploads: map[string]string{}, files: map[string]string{}}
}

// On answers every command containing substr with resp. Later rules take
// precedence over earlier ones.
func (f *FakeTransport) On(substr string, resp Response) *FakeTransport {
	return f.OnFunc(func(_, command string) bool { return strings.Contains(command, substr) }, resp)
}

// OnFunc answers every command accepted by match with resp.
func (f *FakeTransport) OnFunc(match func(node, command string) bool, resp Response) *FakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{match: match, resp: resp})
	return f
}

// SetFile makes remotePath downloadable.
func (f *FakeTransport) SetFile(node, remotePath, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[node+":"+remotePath] = content
}

func (f *FakeTransport) lookup(node, command string) Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rules) - 1; i >= 0; i-- {
		if f.rules[i].match(node, command) {
			return f.rules[i].resp
		}
	}
	return Response{}
}

// Run implements transport.Transport.
func (f *FakeTransport) Run(ctx context.Context, target transport.Target, command string, opts ...transport.RunOption) (*transport.RunResult, error) {
	o := transport.CollectOptions(opts...)
	resp := f.lookup(target.Node, command)

	f.mu.Lock()
	f.inflight++
	if f.inflight > f.peak {
		f.peak = f.inflight
	}
	f.mu.Unlock()

	start := time.Now()
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
		}
	}
	end := time.Now()

	f.mu.Lock()
	f.inflight--
	f.calls = append(f.calls, Call{Node: target.Node, Command: command, Start: start, End: end})
	f.mu.Unlock()

	res := &transport.RunResult{
		Stdout:     []byte(resp.Stdout),
		Stderr:     []byte(resp.Stderr),
		ReturnCode: resp.Code,
		Duration:   end.Sub(start),
	}
	if resp.Err != nil {
		return res, &transport.RemoteExecutionError{Node: target.Node, Command: command, ReturnCode: resp.Code, Err: resp.Err}
	}
	if resp.Code == 255 {
		return res, &transport.RemoteExecutionError{Node: target.Node, Command: command, ReturnCode: 255, Stderr: resp.Stderr, Connectivity: true}
	}
	if resp.Code != 0 && !o.MayFail {
		return res, &transport.RemoteExecutionError{Node: target.Node, Command: command, ReturnCode: resp.Code, Stderr: resp.Stderr}
	}
	return res, nil
}

// Upload implements transport.Transport by recording the file content.
func (f *FakeTransport) Upload(ctx context.Context, target transport.Target, localPath, remotePath string, attrs transport.FileAttrs) error {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	cmds := append([]string{"upload " + remotePath}, transport.AttrCommands(remotePath, attrs)...)
	if _, err := f.Run(ctx, target, strings.Join(cmds, " && ")); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[target.Node+":"+remotePath] = string(content)
	return nil
}

// Download implements transport.Transport from files registered with
// SetFile.
func (f *FakeTransport) Download(ctx context.Context, target transport.Target, remotePath, localPath string) error {
	if _, err := f.Run(ctx, target, "download "+remotePath); err != nil {
		return err
	}
	f.mu.Lock()
	content, ok := f.files[target.Node+":"+remotePath]
	f.mu.Unlock()
	if !ok {
		return &transport.RemoteExecutionError{Node: target.Node, Command: "download " + remotePath, ReturnCode: 1, Stderr: "no such file"}
	}
	return os.WriteFile(localPath, []byte(content), 0o600)
}

// Calls returns every recorded command.
func (f *FakeTransport) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Commands returns the recorded commands for node, in completion order.
func (f *FakeTransport) Commands(node string) []string {
	var out []string
	for _, c := range f.Calls() {
		if c.Node == node {
			out = append(out, c.Command)
		}
	}
	return out
}

// Ran reports whether any command on node contained substr.
func (f *FakeTransport) Ran(node, substr string) bool {
	return f.Count(node, substr) > 0
}

// Count returns how many commands on node contained substr.
func (f *FakeTransport) Count(node, substr string) int {
	n := 0
	for _, cmd := range f.Commands(node) {
		if strings.Contains(cmd, substr) {
			n++
		}
	}
	return n
}

// Uploaded returns the content uploaded to remotePath on node.
func (f *FakeTransport) Uploaded(node, remotePath string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.uploads[node+":"+remotePath]
	return content, ok
}

// PeakConcurrency returns the highest number of commands that were running
// at the same time.
func (f *FakeTransport) PeakConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}
