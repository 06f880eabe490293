package ci

import (
	"context"
	"fmt"

	"github.com/google/go-github/v39/github"
	"github.com/xanzy/go-gitlab"

	"github.com/patr-cloud/patr-api/internal/db"
)

// ContentFetcher downloads one file at a commit sha from a repo's git
// provider, using the credential the repo's row carries.
type ContentFetcher interface {
	FetchFile(ctx context.Context, repo *db.CIRepo, sha, filePath string) ([]byte, error)
}

// GitHubFetcher uses the content API (Repositories.GetContents),
// mirroring the teacher's pack dependency on google/go-github without
// the teacher itself ever exercising it.
type GitHubFetcher struct {
	client *github.Client
}

func NewGitHubFetcher(client *github.Client) *GitHubFetcher {
	return &GitHubFetcher{client: client}
}

func (f *GitHubFetcher) FetchFile(ctx context.Context, repo *db.CIRepo, sha, filePath string) ([]byte, error) {
	owner, name, err := splitOwnerRepo(repo.ProviderRepoID)
	if err != nil {
		return nil, err
	}
	fileContent, _, _, err := f.client.Repositories.GetContents(ctx, owner, name, filePath, &github.RepositoryContentGetOptions{Ref: sha})
	if err != nil {
		return nil, fmt.Errorf("fetch %s@%s from github: %w", filePath, sha, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("%s is a directory, not a file", filePath)
	}
	content, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	return []byte(content), nil
}

// GitLabFetcher uses the raw-file API.
type GitLabFetcher struct {
	client *gitlab.Client
}

func NewGitLabFetcher(client *gitlab.Client) *GitLabFetcher {
	return &GitLabFetcher{client: client}
}

func (f *GitLabFetcher) FetchFile(ctx context.Context, repo *db.CIRepo, sha, filePath string) ([]byte, error) {
	raw, _, err := f.client.RepositoryFiles.GetRawFile(repo.ProviderRepoID, filePath, &gitlab.GetRawFileOptions{Ref: gitlab.String(sha)})
	if err != nil {
		return nil, fmt.Errorf("fetch %s@%s from gitlab: %w", filePath, sha, err)
	}
	return raw, nil
}

func splitOwnerRepo(providerRepoID string) (owner, name string, err error) {
	for i := len(providerRepoID) - 1; i >= 0; i-- {
		if providerRepoID[i] == '/' {
			return providerRepoID[:i], providerRepoID[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("provider_repo_id %q is not in owner/repo form", providerRepoID)
}
