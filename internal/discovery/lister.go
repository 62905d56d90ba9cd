package discovery

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/skaphos/repomonitor/internal/model"
	"github.com/skaphos/repomonitor/internal/sortutil"
	"github.com/skaphos/repomonitor/internal/vcs"
)

// Lister enumerates the configured projects and groups them by the
// repository that backs them.
type Lister struct {
	// Projects are explicit project directories.
	Projects []string
	// Roots are walked for repositories, honoring Exclude.
	Roots          []string
	Exclude        []string
	FollowSymlinks bool

	Adapter vcs.Adapter
	Log     logrus.FieldLogger
}

// ListRepositories returns one Repository per distinct repository identity,
// sorted by ID. Projects that are not inside a repository are skipped.
func (l *Lister) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	log := l.Log
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	adapter := l.Adapter
	if adapter == nil {
		adapter = vcs.NewGitAdapter(nil)
	}

	projects, err := l.projects(ctx, log)
	if err != nil {
		return nil, err
	}

	byID := map[string]*model.Repository{}
	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := adapter.Identity(ctx, project)
		if err != nil {
			log.WithField("project", project).WithError(err).Warn("skipping project outside any repository")
			continue
		}
		repo, ok := byID[id]
		if !ok {
			repo = &model.Repository{ID: id}
			byID[id] = repo
		}
		repo.Projects = append(repo.Projects, project)
	}

	repos := make([]model.Repository, 0, len(byID))
	for _, repo := range byID {
		sort.Strings(repo.Projects)
		repo.Path = repo.Projects[0]
		repos = append(repos, *repo)
	}
	sortutil.SortRepositories(repos)
	return repos, nil
}

func (l *Lister) projects(ctx context.Context, log logrus.FieldLogger) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, project := range l.Projects {
		if project == "" {
			continue
		}
		abs, err := filepath.Abs(project)
		if err != nil {
			return nil, fmt.Errorf("resolve project %q: %w", project, err)
		}
		add(filepath.Clean(abs))
	}

	if len(l.Roots) > 0 {
		results, err := Scan(ctx, Options{
			Roots:          l.Roots,
			Exclude:        l.Exclude,
			FollowSymlinks: l.FollowSymlinks,
		})
		if err != nil {
			return nil, fmt.Errorf("scan roots: %w", err)
		}
		for _, res := range results {
			if res.Bare {
				log.WithField("path", res.Path).Debug("skipping bare repository")
				continue
			}
			add(res.Path)
		}
	}
	return out, nil
}
