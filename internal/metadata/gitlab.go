package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"basegraph.app/docwatch/internal/model"
)

const GitLabScheme = "gitlab"

// GitLabSource treats a file in a GitLab repository as a document. Tokens
// look like "gitlab:<project>:<path>[@<ref>]"; the latest commit touching
// the path supplies the modification time and author.
type GitLabSource struct {
	client *gitlab.Client
}

func NewGitLabSource(baseURL, accessToken string) (*GitLabSource, error) {
	client, err := gitlab.NewClient(
		accessToken,
		gitlab.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/api/v4"),
		// Retries are owned by Client so transient and permanent failures
		// are classified in one place.
		gitlab.WithCustomRetryMax(0),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &GitLabSource{client: client}, nil
}

type gitLabRef struct {
	Project string
	Path    string
	Ref     string
}

func parseGitLabToken(token string) (gitLabRef, error) {
	rest, ok := strings.CutPrefix(token, GitLabScheme+":")
	if !ok {
		return gitLabRef{}, fmt.Errorf("missing %q scheme", GitLabScheme)
	}
	project, file, ok := strings.Cut(rest, ":")
	if !ok || project == "" || file == "" {
		return gitLabRef{}, errors.New(`expected "gitlab:<project>:<path>[@<ref>]"`)
	}

	ref := gitLabRef{Project: project, Path: file}
	if i := strings.LastIndex(file, "@"); i > 0 {
		ref.Path, ref.Ref = file[:i], file[i+1:]
	}
	return ref, nil
}

func (s *GitLabSource) Lookup(ctx context.Context, token string) (model.Metadata, error) {
	ref, err := parseGitLabToken(token)
	if err != nil {
		return model.Metadata{}, NewInvalidError(token, err)
	}

	opts := &gitlab.ListCommitsOptions{
		ListOptions: gitlab.ListOptions{PerPage: 1},
		Path:        gitlab.Ptr(ref.Path),
	}
	if ref.Ref != "" {
		opts.RefName = gitlab.Ptr(ref.Ref)
	}

	commits, resp, err := s.client.Commits.ListCommits(ref.Project, opts, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.Response != nil {
			return model.Metadata{}, NewStatusError(token, resp.StatusCode, err)
		}
		return model.Metadata{}, NewTransientError(token, err)
	}
	if len(commits) == 0 {
		return model.Metadata{}, NewNotFoundError(token, fmt.Errorf("no commits touch %s in %s", ref.Path, ref.Project))
	}

	c := commits[0]
	md := model.Metadata{
		Token:      token,
		Title:      ref.Path,
		URL:        c.WebURL,
		ModifiedBy: c.AuthorEmail,
	}
	if md.ModifiedBy == "" {
		md.ModifiedBy = c.AuthorName
	}
	switch {
	case c.CommittedDate != nil:
		md.ModifiedAt = c.CommittedDate.UTC()
	case c.AuthoredDate != nil:
		md.ModifiedAt = c.AuthoredDate.UTC()
	default:
		return model.Metadata{}, NewTransientError(token, fmt.Errorf("commit %s has no date", c.ShortID))
	}
	return md, nil
}
