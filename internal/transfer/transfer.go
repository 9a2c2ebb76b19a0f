// ABOUTME: Upload and download exchanges with path resolution helpers
// ABOUTME: Local files are read fully before the first directive is sent

package transfer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/tether/internal/wire"
)

// ErrRemote wraps an error message returned by the agent in place of data.
var ErrRemote = errors.New("agent reported an error")

// Target is the agent end of a transfer.
type Target interface {
	SendCommand(ctx context.Context, cmd string) (string, error)
	Cwd() string
}

// UploadResult describes a finished upload.
type UploadResult struct {
	Local  string
	Remote string
	Bytes  int
	Reply  string
}

// Upload sends the local file to remote on the agent. An empty remote
// places the file in the agent's working directory under its base name.
// A missing or unreadable local file fails before anything is sent.
func Upload(ctx context.Context, target Target, local, remote string) (*UploadResult, error) {
	path, err := ResolveLocal(local)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", local, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("upload %s: is a directory", local)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", local, err)
	}

	if remote == "" {
		remote = RemoteJoin(target.Cwd(), filepath.Base(path))
	}

	if _, err := target.SendCommand(ctx, wire.UploadFilepath(remote)); err != nil {
		return nil, fmt.Errorf("announcing upload to %s: %w", remote, err)
	}
	if _, err := target.SendCommand(ctx, wire.DirectiveUploadData); err != nil {
		return nil, fmt.Errorf("starting upload to %s: %w", remote, err)
	}
	reply, err := target.SendCommand(ctx, base64.StdEncoding.EncodeToString(data))
	if err != nil {
		return nil, fmt.Errorf("uploading to %s: %w", remote, err)
	}

	return &UploadResult{Local: path, Remote: remote, Bytes: len(data), Reply: reply}, nil
}

// Download fetches remote from the agent and returns the decoded bytes.
func Download(ctx context.Context, target Target, remote string) ([]byte, error) {
	reply, err := target.SendCommand(ctx, wire.Get(remote))
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", remote, err)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(reply))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRemote, strings.TrimSpace(reply))
	}
	return data, nil
}

// ResolveLocal expands a leading ~ and makes path absolute.
func ResolveLocal(path string) (string, error) {
	if path == "" {
		return "", errors.New("no local path given")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding %s: %w", path, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

// DownloadPath picks where a download lands. An empty local uses dir; a
// local naming an existing directory gets the remote base name appended.
func DownloadPath(remote, local, dir string) (string, error) {
	name := RemoteBase(remote)
	if local == "" {
		return ResolveLocal(filepath.Join(dir, name))
	}

	path, err := ResolveLocal(local)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, name), nil
	}
	return path, nil
}

// RemoteBase returns the last element of an agent path, which may use
// either separator.
func RemoteBase(remote string) string {
	remote = strings.TrimRight(remote, `/\`)
	if i := strings.LastIndexAny(remote, `/\`); i >= 0 {
		return remote[i+1:]
	}
	if remote == "" {
		return "download"
	}
	return remote
}

// RemoteJoin joins name onto an agent directory using the separator the
// directory already uses.
func RemoteJoin(dir, name string) string {
	if dir == "" {
		return name
	}
	sep := "/"
	if strings.Contains(dir, `\`) && !strings.Contains(dir, "/") {
		sep = `\`
	}
	return strings.TrimRight(dir, sep) + sep + name
}
