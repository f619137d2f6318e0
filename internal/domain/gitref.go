package domain

import "strings"

// GitRef is a repository named by a checkout expression of the form
// git://[project/]repo[@ref]. An empty Project means the project of the
// pipeline that holds the expression.
type GitRef struct {
	Project    string
	Repository string
	Ref        string
}

// ParseGitRef parses a checkout repository expression. It returns ok=false
// without an error for expressions that are not followed: self, none, aliases
// of declared repository resources and schemes other than git. A git://
// expression without a usable project/repo path fails with an
// *InvalidGitRefError.
func ParseGitRef(expr string) (GitRef, bool, error) {
	s := strings.TrimSpace(expr)
	if s == "" || strings.EqualFold(s, "self") || strings.EqualFold(s, "none") {
		return GitRef{}, false, nil
	}

	scheme, rest, found := strings.Cut(s, "://")
	if !found || !strings.EqualFold(scheme, "git") {
		return GitRef{}, false, nil
	}

	// everything after the first @ is the ref, kept verbatim
	path, ref, _ := strings.Cut(rest, "@")

	segs := strings.Split(path, "/")
	switch len(segs) {
	case 1:
		if segs[0] == "" {
			return GitRef{}, false, &InvalidGitRefError{Expression: expr}
		}
		return GitRef{Repository: segs[0], Ref: ref}, true, nil
	case 2:
		if segs[0] == "" || segs[1] == "" {
			return GitRef{}, false, &InvalidGitRefError{Expression: expr}
		}
		return GitRef{Project: segs[0], Repository: segs[1], Ref: ref}, true, nil
	default:
		return GitRef{}, false, &InvalidGitRefError{Expression: expr}
	}
}
