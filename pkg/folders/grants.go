package folders

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/rxscan/rxscan/pkg/types"
)

// ErrFolderMissing is wrapped in a StorageAccessDeniedError when a grant
// points at a folder that no longer exists.
var ErrFolderMissing = errors.New("folder does not exist")

// ErrUnknownToken is wrapped in a StorageAccessDeniedError when a token is not
// in the access list.
var ErrUnknownToken = errors.New("token not in access list")

// Grants issues and resolves persisted folder access tokens.
type Grants interface {
	// Grant records access to path and returns a token for it.
	Grant(ctx context.Context, path string) (string, error)
	// Resolve returns the folder a token refers to, or a
	// types.StorageAccessDeniedError if it is no longer usable.
	Resolve(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// AccessList is the persisted token to path mapping behind TokenGrants.
type AccessList interface {
	AddAccess(ctx context.Context, token, path string) error
	LookupAccess(ctx context.Context, token string) (string, bool, error)
	RemoveAccess(ctx context.Context, token string) error
}

// PathGrants uses the absolute folder path itself as the token.
type PathGrants struct {
	fs afero.Fs
}

var _ Grants = (*PathGrants)(nil)

func NewPathGrants(fs afero.Fs) *PathGrants {
	return &PathGrants{fs: fs}
}

func (g *PathGrants) Grant(_ context.Context, path string) (string, error) {
	return filepath.Abs(path)
}

func (g *PathGrants) Resolve(_ context.Context, token string) (string, error) {
	ok, err := isDir(g.fs, token)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", types.NewStorageAccessDeniedError(token, ErrFolderMissing)
	}
	return token, nil
}

func (g *PathGrants) Revoke(context.Context, string) error {
	return nil
}

// TokenGrants issues opaque tokens recorded in an AccessList.
type TokenGrants struct {
	list AccessList
	fs   afero.Fs
}

var _ Grants = (*TokenGrants)(nil)

func NewTokenGrants(list AccessList, fs afero.Fs) *TokenGrants {
	return &TokenGrants{list: list, fs: fs}
}

func (g *TokenGrants) Grant(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	token := uuid.NewString()
	if err := g.list.AddAccess(ctx, token, abs); err != nil {
		return "", err
	}
	return token, nil
}

func (g *TokenGrants) Resolve(ctx context.Context, token string) (string, error) {
	path, ok, err := g.list.LookupAccess(ctx, token)
	if err != nil {
		return "", fmt.Errorf("looking up token: %w", err)
	}
	if !ok {
		return "", types.NewStorageAccessDeniedError(token, ErrUnknownToken)
	}
	exists, err := isDir(g.fs, path)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", types.NewStorageAccessDeniedError(token, ErrFolderMissing)
	}
	return path, nil
}

func (g *TokenGrants) Revoke(ctx context.Context, token string) error {
	return g.list.RemoveAccess(ctx, token)
}
