package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/defenseunicorns/uds-preflight-scan/internal/executor"
	"github.com/defenseunicorns/uds-preflight-scan/pkg/semver"
	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

const (
	// DefaultBinary is the scanning tool looked up on PATH.
	DefaultBinary = "preflight"
	// DefaultPlatform is the image platform passed to the scanning tool.
	DefaultPlatform = "amd64"
	// MinVersion is the oldest supported release of the scanning tool.
	MinVersion = "1.6.11"
)

// ErrToolNotFound is returned when the scanning tool is not on PATH.
var ErrToolNotFound = errors.New("preflight is not installed or not found in PATH")

// ErrToolTooOld is returned when the scanning tool is older than MinVersion.
var ErrToolTooOld = errors.New("preflight version is too old")

// lookPath is swapped out in tests.
var lookPath = exec.LookPath

var unsafeDirChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Options configures a Scanner.
type Options struct {
	// Binary overrides DefaultBinary.
	Binary string
	// Platform overrides DefaultPlatform.
	Platform string
	// AuthJSON is a docker config file handed to the tool with -d.
	AuthJSON string
	// ArtifactsDir keeps the tool's artifacts per image when set; otherwise they are discarded.
	ArtifactsDir string
	// TempDir is where per-scan working directories are created. Empty uses os.TempDir.
	TempDir string
	// Executor overrides the subprocess executor.
	Executor types.CommandExecutor
}

// Scanner runs `preflight check container` against single images.
type Scanner struct {
	logger       types.Logger
	executor     types.CommandExecutor
	binary       string
	platform     string
	authJSON     string
	artifactsDir string
	tempDir      string
}

// New creates a Scanner.
func New(logger types.Logger, opts Options) *Scanner {
	if logger == nil {
		logger = &types.MockLogger{}
	}
	s := &Scanner{
		logger:       logger,
		executor:     opts.Executor,
		binary:       opts.Binary,
		platform:     opts.Platform,
		authJSON:     opts.AuthJSON,
		artifactsDir: opts.ArtifactsDir,
		tempDir:      opts.TempDir,
	}
	if s.executor == nil {
		s.executor = executor.NewCommandExecutor()
	}
	if s.binary == "" {
		s.binary = DefaultBinary
	}
	if s.platform == "" {
		s.platform = DefaultPlatform
	}
	return s
}

// CheckTool verifies the scanning tool is on PATH and returns its location.
func (s *Scanner) CheckTool() (string, error) {
	p, err := lookPath(s.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrToolNotFound, err)
	}
	return p, nil
}

// CheckVersion runs `<tool> --version` and verifies it is at least MinVersion.
// It returns the detected version.
func (s *Scanner) CheckVersion(ctx context.Context) (string, error) {
	stdout, stderr, err := s.executor.ExecuteCommand(ctx, s.binary, []string{"--version"}, os.Environ())
	if err != nil {
		return "", fmt.Errorf("error checking preflight version: %w", err)
	}
	ok, current, err := semver.AtLeast(stdout+stderr, MinVersion)
	if err != nil {
		return "", fmt.Errorf("error checking preflight version: %w", err)
	}
	if !ok {
		return current, fmt.Errorf("%w: %s < %s", ErrToolTooOld, current, MinVersion)
	}
	return current, nil
}

// commandArgs builds the tool arguments for target.
func (s *Scanner) commandArgs(target types.ImageTarget) []string {
	args := []string{"check", "container", "--platform", s.platform, target.InspectRef}
	if s.authJSON != "" {
		args = append(args, "-d", s.authJSON)
	}
	return args
}

// exitCoder matches *exec.ExitError and test doubles of it.
type exitCoder interface {
	ExitCode() int
}

// ScanImage runs the scanning tool against target and scrapes its results.
// It never returns nil; failures are reported through Err and ExitErr.
func (s *Scanner) ScanImage(ctx context.Context, target types.ImageTarget) *types.ImageScanResult {
	start := time.Now()
	result := &types.ImageScanResult{Target: target, Verdict: types.StatusNotApplicable}
	logger := s.logger.With(zap.String("image", target.InspectRef))

	s.scanImage(ctx, target, result, logger)

	result.Elapsed = time.Since(start)
	logger.Debug("Scan finished",
		zap.String("verdict", string(result.Verdict)),
		zap.Int("checks", len(result.Rows)),
		zap.Duration("elapsed", result.Elapsed))
	return result
}

func (s *Scanner) scanImage(ctx context.Context, target types.ImageTarget, result *types.ImageScanResult,
	logger types.Logger) {
	workDir, err := os.MkdirTemp(s.tempDir, "preflight-scan-*")
	if err != nil {
		result.Err = fmt.Errorf("error creating working directory for %s: %w", target.InspectRef, err)
		return
	}
	defer os.RemoveAll(workDir)

	logFile := filepath.Join(workDir, "preflight.log")
	artifacts := filepath.Join(workDir, "artifacts")
	if s.artifactsDir != "" {
		artifacts = filepath.Join(s.artifactsDir, unsafeDirChars.ReplaceAllString(target.DisplayName(), "_"))
	}

	env := append(os.Environ(),
		"PFLT_LOGFILE="+logFile,
		"PFLT_JUNIT=true",
		"PFLT_LOGLEVEL=debug",
		"PFLT_ARTIFACTS="+artifacts,
	)

	logger.Info("Scanning image")
	stdout, stderr, err := s.executor.ExecuteCommand(ctx, s.binary, s.commandArgs(target), env)
	if err != nil {
		var ec exitCoder
		if ctx.Err() != nil || !errors.As(err, &ec) {
			result.Err = fmt.Errorf("error running preflight for %s: %w", target.InspectRef, err)
			return
		}
		result.ExitErr = fmt.Errorf("preflight scan failed for %s: %w", target.InspectRef, err)
		logger.Error("Preflight scan failed", zap.Error(err))
	}

	combined := stdout + stderr
	logContent, err := os.ReadFile(logFile)
	if err != nil && !os.IsNotExist(err) {
		logger.Warn("Error reading preflight log", zap.String("path", logFile), zap.Error(err))
	}

	checks, err := ParseCheckResults(combined)
	if err != nil {
		logger.Warn("Preflight output truncated, later checks are missing", zap.Error(err))
	}
	var modifiedFiles []string
	if hasFailedModifiedFiles(checks) {
		modifiedFiles = ParseModifiedFiles(string(logContent))
	}
	result.Rows = BuildRows(target, checks, modifiedFiles)
	result.Verdict = ParseVerdict(string(logContent), combined)
}
