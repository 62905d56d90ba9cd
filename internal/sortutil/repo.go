package sortutil

import (
	"sort"

	"github.com/skaphos/repomonitor/internal/model"
)

// LessRepoIDPath provides deterministic ordering by repository identity first,
// then by path for repositories checked out in several places.
func LessRepoIDPath(repoIDI, pathI, repoIDJ, pathJ string) bool {
	if repoIDI == repoIDJ {
		return pathI < pathJ
	}
	return repoIDI < repoIDJ
}

// SortRepoResults orders cycle results by RepoID, then Path.
func SortRepoResults(results []model.RepoResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return LessRepoIDPath(results[i].RepoID, results[i].Path, results[j].RepoID, results[j].Path)
	})
}

// SortRepositories orders repositories by ID, then Path.
func SortRepositories(repos []model.Repository) {
	sort.SliceStable(repos, func(i, j int) bool {
		return LessRepoIDPath(repos[i].ID, repos[i].Path, repos[j].ID, repos[j].Path)
	})
}
