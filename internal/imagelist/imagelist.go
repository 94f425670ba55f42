// Package imagelist resolves the images to scan, either from a newline-delimited
// file of image references or from a namespace listing of the registry API.
package imagelist

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/defenseunicorns/uds-preflight-scan/internal/registry"
	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

// ErrNoImages is returned when resolution produced nothing to scan.
var ErrNoImages = errors.New("no images found, check the API response or the image list file")

// UnresolvedError reports a repository whose tag could not be resolved. Target carries
// the repository name and path without a tag.
type UnresolvedError struct {
	Target types.ImageTarget
	Err    error
}

func (e *UnresolvedError) Error() string { return e.Err.Error() }

func (e *UnresolvedError) Unwrap() error { return e.Err }

// Unresolved collects every *UnresolvedError in the tree of err, in order.
func Unresolved(err error) []*UnresolvedError {
	var out []*UnresolvedError
	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) { //nolint:errorlint // walking the tree by hand
		case nil:
		case *UnresolvedError:
			out = append(out, e)
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(e.Unwrap())
		}
	}
	walk(err)
	return out
}

// TagType selects how registry images are referenced.
type TagType string

const (
	// TagTypeName references images by tag name (name:tag).
	TagTypeName TagType = "name"
	// TagTypeDigest references images by manifest digest (name@sha256:...).
	TagTypeDigest TagType = "digest"
)

// ParseTagType validates a tag type flag value. Empty means TagTypeName.
func ParseTagType(s string) (TagType, error) {
	switch TagType(s) {
	case "", TagTypeName:
		return TagTypeName, nil
	case TagTypeDigest:
		return TagTypeDigest, nil
	default:
		return "", fmt.Errorf("invalid tag type %q: must be name or digest", s)
	}
}

// FromFile reads image references from path, one per line.
func FromFile(filePath string) ([]types.ImageTarget, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("error opening image list: %w", err)
	}
	defer f.Close()

	targets, err := FromReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return targets, nil
}

// FromReader parses image references, skipping blank lines and # comments.
func FromReader(r io.Reader) ([]types.ImageTarget, error) {
	var targets []types.ImageTarget
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		target, err := ParseTarget(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		targets = append(targets, target)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading image list: %w", err)
	}
	if len(targets) == 0 {
		return nil, ErrNoImages
	}
	return targets, nil
}

// ParseTarget turns a single image reference into an ImageTarget.
// References without tag or digest resolve to the implicit "latest" tag.
func ParseTarget(ref string) (types.ImageTarget, error) {
	parsed, err := name.ParseReference(ref)
	if err != nil {
		return types.ImageTarget{}, fmt.Errorf("invalid image reference %q: %w", ref, err)
	}
	return types.ImageTarget{
		Source:     ref,
		Name:       path.Base(parsed.Context().RepositoryStr()),
		Tag:        parsed.Identifier(),
		InspectRef: ref,
	}, nil
}

// RepositoryClient is the part of the registry client the resolver needs.
type RepositoryClient interface {
	ListRepositories(ctx context.Context, namespace string) ([]registry.Repository, error)
	GetRepository(ctx context.Context, namespace, name string) (*registry.RepositoryDetails, error)
}

// RegistryOptions configures FromRegistry.
type RegistryOptions struct {
	// FQDN is the registry host used to build inspect references.
	FQDN string
	// Namespace is the registry organization to list.
	Namespace string
	// Prefix keeps repositories whose name contains any of its |-separated alternatives.
	// Empty keeps everything.
	Prefix string
	// Filter drops repositories whose name contains any of its |-separated alternatives.
	Filter string
	// TagType selects tag name or digest references.
	TagType TagType
	// ExtraImages are repository names appended after the filtered listing.
	ExtraImages []string
}

// FromRegistry lists the namespace, filters it and resolves the first tag of every repository.
// Repositories that cannot be resolved are reported in the returned error as *UnresolvedError
// values while the resolved ones are still returned.
func FromRegistry(ctx context.Context, client RepositoryClient, opts RegistryOptions) ([]types.ImageTarget, error) {
	if client == nil {
		return nil, fmt.Errorf("registry client cannot be nil")
	}
	tagType, err := ParseTagType(string(opts.TagType))
	if err != nil {
		return nil, err
	}

	repos, err := client.ListRepositories(ctx, opts.Namespace)
	if err != nil {
		return nil, fmt.Errorf("error fetching repository list: %w", err)
	}

	names := FilterNames(repositoryNames(repos), opts.Prefix, opts.Filter)
	names = appendUnique(names, opts.ExtraImages...)

	var errs error
	targets := make([]types.ImageTarget, 0, len(names))
	for _, repoName := range names {
		target, err := resolveRepository(ctx, client, opts.FQDN, opts.Namespace, repoName, tagType)
		if err != nil {
			errs = errors.Join(errs, &UnresolvedError{Target: target, Err: err})
			continue
		}
		targets = append(targets, target)
	}

	if len(targets) == 0 {
		return nil, errors.Join(ErrNoImages, errs)
	}
	return targets, errs
}

func resolveRepository(ctx context.Context, client RepositoryClient, fqdn, namespace, repoName string,
	tagType TagType) (types.ImageTarget, error) {
	host := strings.TrimPrefix(strings.TrimPrefix(fqdn, "https://"), "http://")
	repoPath := strings.TrimSuffix(host, "/") + "/" + namespace + "/" + repoName
	target := types.ImageTarget{
		Source:     repoName,
		Name:       path.Base(repoName),
		InspectRef: repoPath,
	}

	details, err := client.GetRepository(ctx, namespace, repoName)
	if err != nil {
		return target, fmt.Errorf("error fetching image details for %s: %w", repoName, err)
	}
	if len(details.Tags) == 0 {
		return target, fmt.Errorf("%s: %w", repoName, registry.ErrNoTags)
	}

	tag := details.Tags[0]
	switch tagType {
	case TagTypeDigest:
		if tag.ManifestDigest == "" {
			return target, fmt.Errorf("%s: tag %s has no manifest digest", repoName, tag.Name)
		}
		target.Tag = tag.ManifestDigest
		target.InspectRef = repoPath + "@" + tag.ManifestDigest
	default:
		target.Tag = tag.Name
		target.InspectRef = repoPath + ":" + tag.Name
	}
	return target, nil
}

func repositoryNames(repos []registry.Repository) []string {
	names := make([]string, 0, len(repos))
	for _, r := range repos {
		names = append(names, r.Name)
	}
	return names
}

// FilterNames keeps names matching prefix and not matching filter, preserving order.
// Both arguments are |-separated lists of substrings.
func FilterNames(names []string, prefix, filter string) []string {
	includes := splitAlternatives(prefix)
	excludes := splitAlternatives(filter)

	out := make([]string, 0, len(names))
	for _, n := range names {
		if len(includes) > 0 && !containsAny(n, includes) {
			continue
		}
		if containsAny(n, excludes) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func splitAlternatives(s string) []string {
	var alts []string
	for _, a := range strings.Split(s, "|") {
		if a = strings.TrimSpace(a); a != "" {
			alts = append(alts, a)
		}
	}
	return alts
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func appendUnique(names []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(names)+len(extra))
	for _, n := range names {
		seen[n] = struct{}{}
	}
	for _, e := range extra {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		names = append(names, e)
	}
	return names
}
