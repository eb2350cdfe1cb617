package ramus

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Options configure a repository.
type Options struct {
	Hash   string
	Merge  MergeFunc
	Author string
	Logger *slog.Logger
}

// Option is a functional option for New, Open and OpenMem.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Hash:   DefaultHash,
		Author: defaultAuthor(),
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithHash selects the digest algorithm by its multihash name, for
// example "sha1" or "sha2-256". All keys of a repository use one
// algorithm; changing it changes every key.
func WithHash(name string) Option {
	return func(o *Options) { o.Hash = name }
}

// WithMerge installs the resolver for contents that diverged on both
// sides of a merge. Without one, any such divergence is a conflict.
func WithMerge(fn MergeFunc) Option {
	return func(o *Options) { o.Merge = fn }
}

// WithAuthor sets the author recorded in commits this repository
// creates.
func WithAuthor(author string) Option {
	return func(o *Options) {
		if author != "" {
			o.Author = author
		}
	}
}

// WithLogger directs the repository's structured logs. The default
// discards them.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

func defaultAuthor() string {
	if a := os.Getenv("RAMUS_AUTHOR"); a != "" {
		return a
	}
	return "ramus"
}

// DefaultDir returns the conventional on-disk location for a
// repository opened without an explicit path.
func DefaultDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "ramus")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "ramus")
	}
	return ".ramus"
}
