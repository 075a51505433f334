// Package gitproto parses the exec-request command strings this transport
// accepts: the two Git smart-HTTP-over-SSH helpers and the Git-LFS
// authentication pseudo-command.
package gitproto

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrUnsupportedCommand is returned for a command whose binary name is not
// one this transport implements.
var ErrUnsupportedCommand = errors.New("gitproto: unsupported command")

// ErrInvalidCommand is returned for a command that doesn't match the
// expected grammar at all (malformed quoting, bad path, unknown verb).
var ErrInvalidCommand = errors.New("gitproto: invalid command")

// Op distinguishes the two Git-LFS transfer directions.
type Op string

const (
	OpDownload Op = "download"
	OpUpload   Op = "upload"
)

// Command is the parsed form of an exec-request string: either a
// LfsAuthCommand or a GitCommand.
type Command interface{ isCommand() }

// LfsAuthCommand corresponds to:
//
//	git-lfs-authenticate '?/?~<USER>/<REPO>' (download|upload)
type LfsAuthCommand struct {
	User string
	Repo string
	Op   Op
}

func (LfsAuthCommand) isCommand() {}

// GitCommand corresponds to:
//
//	(git-upload-pack|git-receive-pack) '/?~<USER>/<REPO>'
type GitCommand struct {
	Bin  string // "git-upload-pack" or "git-receive-pack"
	User string
	Repo string
}

func (GitCommand) isCommand() {}

// Render reproduces the canonical wire form of a GitCommand, e.g.
// `git-upload-pack '/~alice/demo.git'` — used by the round-trip test.
func (c GitCommand) Render() string {
	return fmt.Sprintf("%s '/~%s/%s'", c.Bin, c.User, c.Repo)
}

const (
	userPattern = `[A-Za-z0-9]+`
	repoPattern = `[.\-A-Za-z0-9]+\.git`
)

var (
	// The repo-path argument is either quoted or bare — never half-quoted —
	// so the two forms are matched as alternatives rather than with
	// independently optional quote characters.
	lfsAuthRe = regexp.MustCompile(
		`^git-lfs-authenticate (?:'/?~(` + userPattern + `)/(` + repoPattern + `)'|/?~(` + userPattern + `)/(` + repoPattern + `)) (download|upload)$`,
	)
	gitRe = regexp.MustCompile(
		`^(git-upload-pack|git-receive-pack) '/?~(` + userPattern + `)/(` + repoPattern + `)'$`,
	)
	binNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+`)
)

// Parse classifies a raw exec-request string into a Command. Binary names
// outside {git-upload-pack, git-receive-pack, git-lfs-authenticate} yield
// ErrUnsupportedCommand; anything that doesn't match the expected grammar
// for its binary yields ErrInvalidCommand.
func Parse(cmd string) (Command, error) {
	if m := lfsAuthRe.FindStringSubmatch(cmd); m != nil {
		user, repo := m[1], m[2]
		if user == "" && repo == "" {
			user, repo = m[3], m[4]
		}
		return LfsAuthCommand{User: user, Repo: repo, Op: Op(m[5])}, nil
	}
	if m := gitRe.FindStringSubmatch(cmd); m != nil {
		return GitCommand{Bin: m[1], User: m[2], Repo: m[3]}, nil
	}

	bin := binNameRe.FindString(cmd)
	switch bin {
	case "git-upload-pack", "git-receive-pack", "git-lfs-authenticate":
		return nil, fmt.Errorf("%w: %q", ErrInvalidCommand, cmd)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCommand, cmd)
	}
}
