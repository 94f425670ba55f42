package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

var (
	errNoToken             = errors.New("registry API token is not provided")
	errRequestCreation     = errors.New("error creating request")
	errRequest             = errors.New("error making request")
	errInvalidResponse     = errors.New("unexpected status code")
	errReadingResponseBody = errors.New("error reading response body")
	errJSONParsing         = errors.New("error parsing JSON response")
	// ErrNoTags is returned when a repository has no tags to scan.
	ErrNoTags = errors.New("repository has no tags")
)

// lastModifiedLayout is the timestamp format of the last_modified tag field.
const lastModifiedLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// maxPages stops pagination loops on a misbehaving server.
const maxPages = 1000

// Repository is a single entry of a namespace listing.
type Repository struct {
	Namespace   string `json:"namespace"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

// Tag is a tag of a repository.
type Tag struct {
	Name           string `json:"name"`
	ManifestDigest string `json:"manifest_digest"`
	LastModified   string `json:"last_modified"`
}

// RepositoryDetails is the repository endpoint response, reduced to what the scanner needs.
type RepositoryDetails struct {
	Namespace string
	Name      string
	// Tags is ordered so that Tags[0] is the tag to scan.
	Tags []Tag
}

type repositoryList struct {
	Repositories []Repository `json:"repositories"`
	NextPage     string       `json:"next_page"`
}

type repositoryResponse struct {
	Namespace string          `json:"namespace"`
	Name      string          `json:"name"`
	Tags      json.RawMessage `json:"tags"`
}

// Client talks to a Quay-compatible registry REST API.
type Client struct {
	httpClient types.HTTPClientInterface
	baseURL    string
	token      string
}

// NewClient creates a Client for the registry at fqdn.
// fqdn may carry a scheme (http://host:port); otherwise https is used.
// When httpClient is nil an oauth2 static token client is used.
func NewClient(ctx context.Context, httpClient types.HTTPClientInterface, fqdn, token string) (*Client, error) {
	if token == "" {
		return nil, errNoToken
	}
	if fqdn == "" {
		return nil, fmt.Errorf("registry fqdn cannot be empty")
	}

	if httpClient == nil {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		oc := oauth2.NewClient(ctx, ts)
		oc.Timeout = types.DefaultHTTPTimeout
		httpClient = oc
	}

	base := strings.TrimSuffix(fqdn, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    base + "/api/v1",
		token:      token,
	}, nil
}

// get performs an authenticated GET and decodes a 200 response into out.
func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errRequestCreation, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d from %s", errInvalidResponse, resp.StatusCode, endpoint)
	}

	if out == nil {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", errReadingResponseBody, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %w", errJSONParsing, err)
	}
	return nil
}

// CheckAuth verifies the token can list the namespace.
func (c *Client) CheckAuth(ctx context.Context, namespace string) error {
	return c.get(ctx, "/repository?namespace="+url.QueryEscape(namespace), nil)
}

// ListRepositories returns every repository of namespace, following next_page tokens.
func (c *Client) ListRepositories(ctx context.Context, namespace string) ([]Repository, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	var repos []Repository
	nextPage := ""
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("namespace", namespace)
		if nextPage != "" {
			q.Set("next_page", nextPage)
		}

		var list repositoryList
		if err := c.get(ctx, "/repository?"+q.Encode(), &list); err != nil {
			return nil, fmt.Errorf("failed to list repositories of %s: %w", namespace, err)
		}
		repos = append(repos, list.Repositories...)

		if list.NextPage == "" || list.NextPage == nextPage {
			return repos, nil
		}
		nextPage = list.NextPage
	}
	return repos, nil
}

// GetRepository fetches a repository with its tags.
// Tags returned as a list keep their order; tags returned as a map are ordered newest first.
func (c *Client) GetRepository(ctx context.Context, namespace, name string) (*RepositoryDetails, error) {
	var resp repositoryResponse
	endpoint := fmt.Sprintf("/repository/%s/%s", url.PathEscape(namespace), escapeRepoPath(name))
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to get repository %s/%s: %w", namespace, name, err)
	}

	tags, err := decodeTags(resp.Tags)
	if err != nil {
		return nil, fmt.Errorf("%w: tags of %s/%s: %w", errJSONParsing, namespace, name, err)
	}

	details := &RepositoryDetails{
		Namespace: resp.Namespace,
		Name:      resp.Name,
		Tags:      tags,
	}
	if details.Name == "" {
		details.Name = name
	}
	if details.Namespace == "" {
		details.Namespace = namespace
	}
	return details, nil
}

// escapeRepoPath escapes each segment of a nested repository name.
func escapeRepoPath(name string) string {
	segments := strings.Split(name, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func decodeTags(raw json.RawMessage) ([]Tag, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var list []Tag
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var byName map[string]Tag
	if err := json.Unmarshal(raw, &byName); err != nil {
		return nil, err
	}
	tags := make([]Tag, 0, len(byName))
	for name, tag := range byName {
		if tag.Name == "" {
			tag.Name = name
		}
		tags = append(tags, tag)
	}
	sort.SliceStable(tags, func(i, j int) bool {
		ti, tj := parseLastModified(tags[i].LastModified), parseLastModified(tags[j].LastModified)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return tags[i].Name < tags[j].Name
	})
	return tags, nil
}

func parseLastModified(s string) time.Time {
	t, err := time.Parse(lastModifiedLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
