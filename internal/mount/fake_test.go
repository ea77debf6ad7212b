package mount

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type op struct {
	kind   string
	source string
	target string
}

func (o op) String() string {
	if o.source == "" {
		return fmt.Sprintf("%s %s", o.kind, o.target)
	}
	return fmt.Sprintf("%s %s -> %s", o.kind, o.source, o.target)
}

// fakeSyscalls records mount operations without performing them. Shadows
// stay plain directories under the work dir so tests can inspect them.
type fakeSyscalls struct {
	mu     sync.Mutex
	ops    []op
	labels map[string]string

	// failBind makes BindMount fail for the given targets.
	failBind map[string]error
	// failTmpfs makes MountTmpfs fail.
	failTmpfs error
}

func newFakeSyscalls() *fakeSyscalls {
	return &fakeSyscalls{
		labels:   make(map[string]string),
		failBind: make(map[string]error),
	}
}

func (f *fakeSyscalls) record(kind, source, target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op{kind: kind, source: source, target: target})
}

func (f *fakeSyscalls) BindMount(source, target string) error {
	if err := f.failBind[target]; err != nil {
		return err
	}
	f.record("bind", source, target)
	return nil
}

func (f *fakeSyscalls) RemountReadOnly(target string) error {
	f.record("ro", "", target)
	return nil
}

func (f *fakeSyscalls) MoveMount(source, target string) error {
	f.record("move", source, target)
	return nil
}

func (f *fakeSyscalls) MakePrivate(target string) error {
	f.record("private", "", target)
	return nil
}

func (f *fakeSyscalls) MountTmpfs(source, target string) error {
	if f.failTmpfs != nil {
		return f.failTmpfs
	}
	f.record("tmpfs", source, target)
	return nil
}

func (f *fakeSyscalls) DetachUnmount(target string) error {
	f.record("umount", "", target)
	return nil
}

func (*fakeSyscalls) Lchown(string, int, int) error { return nil }

func (f *fakeSyscalls) GetLabel(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.labels[path], nil
}

func (f *fakeSyscalls) SetLabel(path, label string) error {
	if label == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels[path] = label
	return nil
}

// kinds returns the recorded operations of the given kind.
func (f *fakeSyscalls) kinds(kind string) []op {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []op
	for _, o := range f.ops {
		if o.kind == kind {
			out = append(out, o)
		}
	}
	return out
}

type fakeRegistrar struct {
	mu    sync.Mutex
	paths []string
}

func (r *fakeRegistrar) Register(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func assertOps(t *testing.T, want, got []op) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(op{})); diff != "" {
		t.Errorf("mount operations mismatch (-want +got):\n%s", diff)
	}
}
