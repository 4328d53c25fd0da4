package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sys/unix"
)

// SymlinkBehavior mirrors secpolicy.SymlinkBehavior without importing
// it, keeping this package's dependency surface one-directional
// (secpolicy -> validate, never the reverse).
type SymlinkBehavior string

const (
	SymlinkFollow   SymlinkBehavior = "follow"
	SymlinkNoFollow SymlinkBehavior = "no_follow"
)

// PathErrorKind is the closed taxonomy of path-gate rejections.
type PathErrorKind string

const (
	PathErrEmpty        PathErrorKind = "empty_path"
	PathErrNullByte     PathErrorKind = "null_byte"
	PathErrSymlink      PathErrorKind = "symlink_rejected"
	PathErrNotAllowed   PathErrorKind = "path_not_allowed"
	PathErrDenyPattern  PathErrorKind = "deny_pattern_matched"
	PathErrStat         PathErrorKind = "stat_failed"
	PathErrTooLarge     PathErrorKind = "file_size_limit_exceeded"
)

// PathError is returned by every path-gate failure.
type PathError struct {
	Kind PathErrorKind
	Path string
	Err  error
}

func (e *PathError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("path rejected (%s): %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("path rejected (%s): %s", e.Kind, e.Path)
}

func (e *PathError) Unwrap() error { return e.Err }

// CanonicalPath is the type-state proof that a path has been
// canonicalized and symlink-checked atomically: a tool accepts a
// CanonicalPath, never a raw string, so an unvalidated path can never
// reach a side-effecting tool. Only ValidatePath constructs one.
type CanonicalPath struct {
	abs string
}

// String returns the canonical absolute path.
func (c CanonicalPath) String() string { return c.abs }

// PathPolicy is the subset of the filesystem policy the path gate
// consults: allow-list, deny patterns, symlink behavior.
type PathPolicy struct {
	AllowPaths      []string
	DenyPatterns    []string
	SymlinkBehavior SymlinkBehavior
}

// ValidatePath canonicalizes raw and checks it against policy,
// rejecting any path that resolves outside the allow-list or that
// observes a symlink component when SymlinkNoFollow is in effect.
//
// The canonicalization-then-symlink-check must be atomic: the
// decision "this path contains no symlink" and the resolution "this
// is the canonical absolute path" must observe the same filesystem
// state, or a TOCTOU window lets an attacker swap a regular file for
// a symlink between the check and the open. On Linux this is done by
// opening with O_NOFOLLOW|O_PATH and reading back
// /proc/self/fd/<n> — the open either fails on the first symlink
// component (ELOOP) or succeeds and /proc/self/fd/<n> names the exact
// inode that was opened, with no second resolution step to race.
func ValidatePath(raw string, policy PathPolicy) (CanonicalPath, error) {
	if raw == "" {
		return CanonicalPath{}, &PathError{Kind: PathErrEmpty, Path: raw}
	}
	if strings.ContainsRune(raw, 0) {
		return CanonicalPath{}, &PathError{Kind: PathErrNullByte, Path: raw}
	}

	var abs string
	var err error
	switch {
	case policy.SymlinkBehavior == SymlinkNoFollow && runtime.GOOS == "linux":
		abs, err = canonicalizeNoFollowLinux(raw)
	case policy.SymlinkBehavior == SymlinkNoFollow && runtime.GOOS != "windows":
		abs, err = canonicalizeNoFollowUnix(raw)
	case policy.SymlinkBehavior == SymlinkNoFollow:
		abs, err = canonicalizeWalkComponents(raw)
	default:
		abs, err = filepath.Abs(raw)
		if err == nil {
			abs, err = filepath.EvalSymlinks(abs)
		}
	}
	if err != nil {
		return CanonicalPath{}, &PathError{Kind: PathErrSymlink, Path: raw, Err: err}
	}

	if !withinAllowList(abs, policy.AllowPaths) {
		return CanonicalPath{}, &PathError{Kind: PathErrNotAllowed, Path: abs}
	}
	for _, deny := range policy.DenyPatterns {
		if matched, _ := filepath.Match(deny, abs); matched || strings.Contains(abs, deny) {
			return CanonicalPath{}, &PathError{Kind: PathErrDenyPattern, Path: abs}
		}
	}

	return CanonicalPath{abs: abs}, nil
}

// canonicalizeNoFollowLinux resolves raw via O_NOFOLLOW|O_PATH and
// /proc/self/fd/<n>: the open and the resolution observe the same
// inode, leaving no window to race.
func canonicalizeNoFollowLinux(raw string) (string, error) {
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", err
	}
	fd, err := unix.Open(abs, unix.O_NOFOLLOW|unix.O_PATH|unix.O_CLOEXEC, 0)
	if err != nil {
		return "", err
	}
	defer unix.Close(fd)

	link := fmt.Sprintf("/proc/self/fd/%d", fd)
	resolved, err := os.Readlink(link)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// canonicalizeNoFollowUnix is the non-Linux Unix fallback: open with
// O_NOFOLLOW and treat ELOOP/EACCES as symlink rejection; on success
// canonicalize normally (the open having already proven the final
// component is not a symlink).
func canonicalizeNoFollowUnix(raw string) (string, error) {
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", err
	}
	fd, err := unix.Open(abs, unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return "", err
	}
	unix.Close(fd)
	return filepath.EvalSymlinks(abs)
}

// canonicalizeWalkComponents is the non-Unix fallback: walk path
// components left to right, rejecting any symlink component *before*
// rejecting ".." — the walk itself is proven symlink-free before the
// traversal check runs. This carries a residual TOCTOU window between
// the walk and any subsequent open by the caller; platform primitives
// are unavailable here so this is the documented fallback, not the
// primary path.
func canonicalizeWalkComponents(raw string) (string, error) {
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", err
	}
	volume := filepath.VolumeName(abs)
	rest := strings.TrimPrefix(abs, volume)
	parts := strings.Split(filepath.ToSlash(rest), "/")

	var walked string
	if volume != "" {
		walked = volume + string(filepath.Separator)
	} else {
		walked = string(filepath.Separator)
	}
	for _, part := range parts {
		if part == "" {
			continue
		}
		if part == ".." {
			return "", fmt.Errorf("path traversal component %q", part)
		}
		next := filepath.Join(walked, part)
		info, err := os.Lstat(next)
		if err == nil && info.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("symlink component %q", part)
		}
		walked = next
	}
	return filepath.Clean(walked), nil
}

func withinAllowList(abs string, allow []string) bool {
	if len(allow) == 0 {
		return false
	}
	for _, a := range allow {
		aAbs, err := filepath.Abs(a)
		if err != nil {
			continue
		}
		if abs == aAbs || strings.HasPrefix(abs, aAbs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ValidateFileSize stats the canonical path and compares its size
// against maxBytes.
func ValidateFileSize(path CanonicalPath, maxBytes uint64) error {
	info, err := os.Stat(path.abs)
	if err != nil {
		return &PathError{Kind: PathErrStat, Path: path.abs, Err: err}
	}
	if uint64(info.Size()) > maxBytes {
		return &PathError{Kind: PathErrTooLarge, Path: path.abs}
	}
	return nil
}
