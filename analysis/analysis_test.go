package analysis

import (
	"context"
	"fmt"
	"testing"

	"github.com/quay/zlog"

	cratespro "github.com/crates-pro/crates-pro"
)

type fakePublisher struct {
	published []string
	fail      bool
}

func (f *fakePublisher) Publish(_ context.Context, key string, _ any) error {
	if f.fail {
		return fmt.Errorf("broker unavailable")
	}
	f.published = append(f.published, key)
	return nil
}

type fakeAnalysisStore struct {
	results   map[string]string
	sentinels map[string]bool
}

func newFakeAnalysisStore() *fakeAnalysisStore {
	return &fakeAnalysisStore{results: map[string]string{}, sentinels: map[string]bool{}}
}

func (f *fakeAnalysisStore) StoreResult(_ context.Context, res *cratespro.ScanResult) error {
	f.results[res.ID+"|"+res.Tool] = res.Blob
	return nil
}

func (f *fakeAnalysisStore) MarkScanFailed(_ context.Context, id, tool string) error {
	f.sentinels[id+"|"+tool] = true
	return nil
}

func (f *fakeAnalysisStore) HasResult(_ context.Context, id, tool string) (bool, error) {
	_, r := f.results[id+"|"+tool]
	return r || f.sentinels[id+"|"+tool], nil
}

func TestDispatch(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	pub := &fakePublisher{}
	store := newFakeAnalysisStore()
	d := NewDispatcher(pub, store)

	req := &cratespro.ScanRequest{Name: "foo", Version: "0.1.0", GitURL: "https://example.com/alice/foo.git"}
	if err := d.Dispatch(ctx, "alice/foo", req); err != nil {
		t.Fatal(err)
	}
	if len(pub.published) != 1 || pub.published[0] != "alice/foo/foo/0.1.0" {
		t.Errorf("published: %v", pub.published)
	}
}

func TestDispatchSkipsSentinel(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	pub := &fakePublisher{}
	store := newFakeAnalysisStore()
	store.sentinels["alice/foo/foo/0.1.0|"+DefaultTool] = true
	d := NewDispatcher(pub, store)

	req := &cratespro.ScanRequest{Name: "foo", Version: "0.1.0"}
	if err := d.Dispatch(ctx, "alice/foo", req); err != nil {
		t.Fatal(err)
	}
	if len(pub.published) != 0 {
		t.Errorf("sentinel did not suppress dispatch: %v", pub.published)
	}
}

func TestDispatchFailureRecordsSentinel(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	pub := &fakePublisher{fail: true}
	store := newFakeAnalysisStore()
	d := NewDispatcher(pub, store)

	req := &cratespro.ScanRequest{Name: "foo", Version: "0.1.0"}
	if err := d.Dispatch(ctx, "alice/foo", req); err == nil {
		t.Fatal("expected a dispatch error")
	}
	if !store.sentinels["alice/foo/foo/0.1.0|"+DefaultTool] {
		t.Error("failure sentinel not recorded")
	}
}
