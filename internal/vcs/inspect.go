package vcs

import (
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
)

// ErrNotCheckout is returned when a directory holds no git repository
var ErrNotCheckout = errors.New("not a git checkout")

// OriginURL returns the fetch URL of the origin remote of the checkout at path
func OriginURL(path string) (string, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return "", ErrNotCheckout
		}
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		return "", fmt.Errorf("origin remote: %w", err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("origin remote of %s has no URL", path)
	}
	return urls[0], nil
}

// CurrentBranch returns the short name of the checked-out branch
func CurrentBranch(path string) (string, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", err
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD of %s is detached", path)
	}
	return head.Name().Short(), nil
}
