package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/defenseunicorns/uds-preflight-scan/internal/log"
	"github.com/defenseunicorns/uds-preflight-scan/internal/registry"
	"github.com/defenseunicorns/uds-preflight-scan/pkg/scan"
	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

// fakeScanner returns two canned rows per image and fails the images listed in fail.
type fakeScanner struct {
	mu         sync.Mutex
	toolErr    error
	versionErr error
	fail       map[string]bool
	scanned    []string
	opts       scan.Options
}

func (f *fakeScanner) ScanImage(_ context.Context, target types.ImageTarget) *types.ImageScanResult {
	f.mu.Lock()
	f.scanned = append(f.scanned, target.InspectRef)
	f.mu.Unlock()

	res := &types.ImageScanResult{
		Target: target,
		Rows: []types.Row{
			{ImageName: target.Name, ImageTag: target.Tag, TestCase: "RunAsNonRoot", Status: types.StatusPassed},
			{ImageName: target.Name, ImageTag: target.Tag, TestCase: "HasLicense", Status: types.StatusFailed},
		},
		Verdict: types.StatusFailed,
		Elapsed: time.Second,
	}
	if f.fail[target.InspectRef] {
		res.ExitErr = errors.New("exit status 1")
	}
	return res
}

func (f *fakeScanner) CheckTool() (string, error) {
	if f.toolErr != nil {
		return "", f.toolErr
	}
	return "/usr/local/bin/preflight", nil
}

func (f *fakeScanner) CheckVersion(context.Context) (string, error) {
	if f.versionErr != nil {
		return "", f.versionErr
	}
	return "1.9.1", nil
}

// fakeRegistry serves a fixed namespace listing.
type fakeRegistry struct {
	repos   []string
	authErr error
}

func (f *fakeRegistry) ListRepositories(_ context.Context, namespace string) ([]registry.Repository, error) {
	repos := make([]registry.Repository, 0, len(f.repos))
	for _, r := range f.repos {
		repos = append(repos, registry.Repository{Namespace: namespace, Name: r})
	}
	return repos, nil
}

func (f *fakeRegistry) GetRepository(_ context.Context, namespace, name string) (*registry.RepositoryDetails, error) {
	if name == "broken" {
		return nil, fmt.Errorf("failed to do request to registry: %s", name)
	}
	return &registry.RepositoryDetails{
		Namespace: namespace,
		Name:      name,
		Tags:      []registry.Tag{{Name: "1.0.0", ManifestDigest: "sha256:abc"}},
	}, nil
}

func (f *fakeRegistry) CheckAuth(context.Context, string) error {
	return f.authErr
}

func okDial(context.Context, string, string) (net.Conn, error) {
	client, server := net.Pipe()
	server.Close()
	return client, nil
}

func failDial(context.Context, string, string) (net.Conn, error) {
	return nil, errors.New("i/o timeout")
}

func testDeps(scanner *fakeScanner, reg *fakeRegistry) scanDeps {
	return scanDeps{
		newScanner: func(_ types.Logger, opts scan.Options) preflightScanner {
			scanner.opts = opts
			return scanner
		},
		newRegistry: func(context.Context, string, string) (registryClient, error) {
			return reg, nil
		},
		dial: okDial,
	}
}

func testContext() context.Context {
	return log.WithLogger(context.Background(), &types.MockLogger{})
}
