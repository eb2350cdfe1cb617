package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/klauspost/compress/zstd"
	"github.com/sourcegraph/conc/pool"

	"github.com/ramusdb/ramus"
)

const (
	headLabel = "dev.ramus.head"

	defaultJobs  = 4
	pushAttempts = 3
)

// OCIRemote treats a registry repository as passive slice storage: one
// tag per branch, the branch head in a manifest label, objects packed
// into zstd layers. Every push appends the delta as fresh layers, so
// the layers of a tag always union to the closure of its head and a
// fetch never needs anything outside the manifest. Registries cannot
// compare-and-swap a tag; a racing push can still lose an update in
// the window between the head check and the write.
type OCIRemote struct {
	repo        name.Repository
	auth        Authenticator
	concurrency int
	log         *slog.Logger
}

var _ ramus.Remote = (*OCIRemote)(nil)

// NewOCIRemote targets a repository reference such as
// "ghcr.io/acme/data". The branch decides the tag.
func NewOCIRemote(repoRef string, auth Authenticator) (*OCIRemote, error) {
	repo, err := name.NewRepository(repoRef)
	if err != nil {
		return nil, fmt.Errorf("invalid repository %q: %w", repoRef, err)
	}
	return &OCIRemote{
		repo:        repo,
		auth:        auth,
		concurrency: defaultJobs,
		log:         slog.New(slog.DiscardHandler),
	}, nil
}

// SetConcurrency bounds parallel layer transfers.
func (r *OCIRemote) SetConcurrency(n int) {
	if n > 0 {
		r.concurrency = n
	}
}

func (r *OCIRemote) SetLogger(l *slog.Logger) {
	if l != nil {
		r.log = l
	}
}

func (r *OCIRemote) String() string { return r.repo.String() }

func (r *OCIRemote) Head(ctx context.Context, branch string) (ramus.Key, bool, error) {
	img, err := r.image(ctx, branch)
	if err != nil {
		if isNotFound(err) {
			return ramus.Key{}, false, nil
		}
		return ramus.Key{}, false, fmt.Errorf("fetch manifest: %w", err)
	}
	head, err := headOf(img)
	if err != nil {
		return ramus.Key{}, false, err
	}
	return head, true, nil
}

// Fetch downloads every layer of the branch tag. A registry cannot
// answer "what is new since these commits", so the whole image comes
// down and import deduplication absorbs the overlap with have.
func (r *OCIRemote) Fetch(ctx context.Context, branch string, have []ramus.Key) (*ramus.Slice, error) {
	img, err := r.image(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	head, err := headOf(img)
	if err != nil {
		return nil, err
	}
	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	r.log.Debug("pulling layers", "branch", branch, "layers", len(layers))

	var mu sync.Mutex
	objects := make(map[ramus.Key][]byte)
	p := pool.New().WithMaxGoroutines(r.concurrency).WithContext(ctx).WithCancelOnError()
	for _, layer := range layers {
		p.Go(func(ctx context.Context) error {
			rc, err := layer.Uncompressed()
			if err != nil {
				return fmt.Errorf("open layer: %w", err)
			}
			data, err := io.ReadAll(rc)
			if cerr := rc.Close(); cerr != nil {
				return fmt.Errorf("close layer: %w", cerr)
			}
			if err != nil {
				return fmt.Errorf("read layer: %w", err)
			}
			blobs, err := unpackLayer(data)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for keyHex, blob := range blobs {
				key, err := ramus.ParseKey(keyHex)
				if err != nil {
					return fmt.Errorf("layer key: %w", err)
				}
				objects[key] = blob
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return ramus.NewSlice([]ramus.Key{head}, objects)
}

func (r *OCIRemote) Push(ctx context.Context, branch string, old, head ramus.Key, s *ramus.Slice) error {
	var base []v1.Layer
	img, err := r.image(ctx, branch)
	switch {
	case err == nil:
		cur, err := headOf(img)
		if err != nil {
			return err
		}
		if cur != old {
			return fmt.Errorf("%w: remote %q moved to %s", ramus.ErrNonFastForward, branch, cur.Short())
		}
		base, err = img.Layers()
		if err != nil {
			return fmt.Errorf("list layers: %w", err)
		}
	case isNotFound(err):
		if !old.IsZero() {
			return fmt.Errorf("%w: remote %q was removed", ramus.ErrNonFastForward, branch)
		}
	default:
		return fmt.Errorf("fetch image: %w", err)
	}

	objects := make(map[string][]byte, s.Len())
	for _, k := range s.Keys() {
		data, _ := s.Object(k)
		objects[k.String()] = data
	}
	byPrefix := groupByPrefix(objects)
	plan := planLayers(prefixSizes(byPrefix))

	layers := append([]v1.Layer(nil), base...)
	var raw, packed int64
	for _, group := range plan {
		layer := newBlobLayer(packLayer(collectPrefixes(group, byPrefix)))
		raw += int64(len(layer.uncompressed))
		packed += int64(len(layer.compressed))
		layers = append(layers, layer)
	}
	r.log.Debug("pushing layers",
		"branch", branch,
		"layers", len(plan),
		"bytes", raw,
		"compressed", packed)

	out, err := buildImage(layers, head)
	if err != nil {
		return fmt.Errorf("build image: %w", err)
	}
	ref := r.repo.Tag(tagFor(branch))
	opts := append(r.options(ctx), remote.WithJobs(r.concurrency))
	_, err = retry(ctx, pushAttempts, func() (struct{}, error) {
		return struct{}{}, remote.Write(ref, out, opts...)
	})
	if err != nil {
		return fmt.Errorf("push image: %w", err)
	}
	return nil
}

func (r *OCIRemote) image(ctx context.Context, branch string) (v1.Image, error) {
	ref := r.repo.Tag(tagFor(branch))
	return retry(ctx, pushAttempts, func() (v1.Image, error) {
		return remote.Image(ref, r.options(ctx)...)
	})
}

func (r *OCIRemote) options(ctx context.Context) []remote.Option {
	opts := []remote.Option{remote.WithContext(ctx)}
	if r.auth != nil {
		if username, password, err := r.auth.Authenticate(r.repo.RegistryStr()); err == nil && username != "" {
			return append(opts, remote.WithAuth(&authn.Basic{Username: username, Password: password}))
		}
	}
	return append(opts, remote.WithAuthFromKeychain(authn.DefaultKeychain))
}

func headOf(img v1.Image) (ramus.Key, error) {
	cfg, err := img.ConfigFile()
	if err != nil {
		return ramus.Key{}, fmt.Errorf("image config: %w", err)
	}
	label := cfg.Config.Labels[headLabel]
	if label == "" {
		return ramus.Key{}, fmt.Errorf("image missing %s label", headLabel)
	}
	return ramus.ParseKey(label)
}

func buildImage(layers []v1.Layer, head ramus.Key) (v1.Image, error) {
	img := empty.Image
	if len(layers) > 0 {
		var err error
		img, err = mutate.AppendLayers(img, layers...)
		if err != nil {
			return nil, err
		}
	}
	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}
	cfg.Config.Labels = map[string]string{headLabel: head.String()}
	return mutate.ConfigFile(img, cfg)
}

// tagFor maps a branch name onto the OCI tag grammar. The mapping is
// one way; nothing ever turns a tag back into a branch name.
func tagFor(branch string) string {
	var b strings.Builder
	for _, c := range branch {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '_', c == '.', c == '-':
			b.WriteRune(c)
		default:
			b.WriteByte('-')
		}
	}
	tag := b.String()
	if tag == "" || tag[0] == '.' || tag[0] == '-' {
		tag = "_" + tag
	}
	if len(tag) > 127 {
		tag = tag[:127]
	}
	return tag
}

// blobLayer is an in-memory zstd layer.
type blobLayer struct {
	compressed   []byte
	uncompressed []byte
}

var zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))

func newBlobLayer(data []byte) *blobLayer {
	return &blobLayer{compressed: zstdEncoder.EncodeAll(data, nil), uncompressed: data}
}

func (l *blobLayer) Digest() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.compressed))
	return h, err
}

func (l *blobLayer) DiffID() (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(l.uncompressed))
	return h, err
}

func (l *blobLayer) Compressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.compressed)), nil
}

func (l *blobLayer) Uncompressed() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.uncompressed)), nil
}

func (l *blobLayer) Size() (int64, error)                { return int64(len(l.compressed)), nil }
func (l *blobLayer) MediaType() (types.MediaType, error) { return types.OCILayerZStd, nil }

func isNotFound(err error) bool {
	var terr *transport.Error
	return errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound
}

// permanent reports registry failures a retry cannot fix.
func permanent(err error) bool {
	var terr *transport.Error
	return errors.As(err, &terr) &&
		terr.StatusCode >= 400 && terr.StatusCode < 500 &&
		terr.StatusCode != http.StatusTooManyRequests
}

func retry[T any](ctx context.Context, attempts int, fn func() (T, error)) (T, error) {
	var zero T
	var last error
	for i := range attempts {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		last = err
		if permanent(err) || i == attempts-1 {
			break
		}
		delay := time.Duration(1<<i) * 500 * time.Millisecond
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, last
}
