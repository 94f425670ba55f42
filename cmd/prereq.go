package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/defenseunicorns/uds-preflight-scan/internal/report"
	"github.com/defenseunicorns/uds-preflight-scan/pkg/scan"
)

// reachabilityTimeout bounds the TCP connect to the registry.
const reachabilityTimeout = 5 * time.Second

var errPrereqFailed = errors.New("pre-requisite checks failed")

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// runChecks verifies the scanning tool, the registry network path and, in API mode, the
// registry token. It prints an OK/NOK table and fails when any check fails.
func runChecks(ctx context.Context, printer *report.Printer, scanner preflightScanner, client registryClient,
	opts *options, dial dialFunc) error {
	var checks []report.Check

	path, err := scanner.CheckTool()
	checks = append(checks, checkResult("preflight installed", path, err))
	if err == nil {
		version, err := scanner.CheckVersion(ctx)
		checks = append(checks, checkResult("preflight version >= "+scan.MinVersion, version, err))
	}

	addr := net.JoinHostPort(registryHost(opts.fqdn), "80")
	checks = append(checks, checkResult("registry reachable", addr, checkReachable(ctx, dial, addr)))

	if client != nil {
		checks = append(checks, checkResult("registry authentication", opts.repoNamespace,
			client.CheckAuth(ctx, opts.repoNamespace)))
	}

	printer.PrintChecks(checks)

	var failed []string
	for _, c := range checks {
		if !c.OK {
			failed = append(failed, c.Name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", errPrereqFailed, strings.Join(failed, ", "))
	}
	return nil
}

func checkResult(name, detail string, err error) report.Check {
	if err != nil {
		return report.Check{Name: name, Detail: err.Error()}
	}
	return report.Check{Name: name, OK: true, Detail: detail}
}

func checkReachable(ctx context.Context, dial dialFunc, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, reachabilityTimeout)
	defer cancel()
	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// registryHost strips any scheme, path and port from fqdn.
func registryHost(fqdn string) string {
	host := fqdn
	if strings.Contains(host, "://") {
		if u, err := url.Parse(host); err == nil {
			host = u.Host
		}
	}
	host, _, _ = strings.Cut(host, "/")
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
