package publish

import "fmt"

// AuthError reports a registry or release host that rejected or lacked
// credentials. The guidance line is printed verbatim for the operator.
type AuthError struct {
	Service  string
	Guidance string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("publish: not authenticated with %s (%s)", e.Service, e.Guidance)
}

// PublishError reports a failed publish step for one package.
type PublishError struct {
	Package string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish: %s: %v", e.Package, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// GitError reports a failed git or release-host command.
type GitError struct {
	Step string
	Err  error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("publish: %s: %v", e.Step, e.Err)
}

func (e *GitError) Unwrap() error { return e.Err }
