package builder

import (
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/oshokin/esp-release/internal/domain/release"
)

// shortHashLen is how much of a commit hash serves as a release name
// when no tag matches.
const shortHashLen = 12

// resolveName resolves the release identity with first-match-wins
// priority: explicit user-supplied name, a tag pointing exactly at the
// current commit, then the short commit hash.
func resolveName(root, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", &release.ConfigurationError{
			Field:  "release name",
			Path:   root,
			Reason: "no explicit name given and the project root is not a git repository",
		}
	}

	head, err := repo.Head()
	if err != nil {
		return "", &release.ConfigurationError{
			Field:  "release name",
			Path:   root,
			Reason: "no explicit name given and the repository has no commits",
		}
	}

	if tag := exactTag(repo, head.Hash()); tag != "" {
		return tag, nil
	}

	return head.Hash().String()[:shortHashLen], nil
}

// exactTag returns the first tag pointing exactly at the commit,
// resolving annotated tags to their targets. Returns "" when none match.
func exactTag(repo *git.Repository, commit plumbing.Hash) string {
	tags, err := repo.Tags()
	if err != nil {
		return ""
	}

	var match string

	_ = tags.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()

		if tagObj, tagErr := repo.TagObject(ref.Hash()); tagErr == nil {
			target = tagObj.Target
		}

		if target == commit && match == "" {
			match = ref.Name().Short()
		}

		return nil
	})

	return match
}
