package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/odyssey-erp/odyssey-authz/internal/rbac"
)

// RefreshEnqueuer submits refresh jobs to the worker queue.
type RefreshEnqueuer interface {
	EnqueueRefresh(ctx context.Context, flush bool) (string, error)
}

// AuthzOpsCLI offers operational helpers for the shared permission cache.
type AuthzOpsCLI struct {
	store    rbac.PermissionStore
	cache    rbac.PermissionCache
	cacheKey string
	jobs     RefreshEnqueuer
}

// NewAuthzOpsCLI constructs the helper. jobs may be nil when only flush and list are used.
func NewAuthzOpsCLI(store rbac.PermissionStore, cache rbac.PermissionCache, cacheKey string, jobs RefreshEnqueuer) (*AuthzOpsCLI, error) {
	if store == nil || cache == nil {
		return nil, errors.New("authz cli: store and cache are required")
	}
	if cacheKey == "" {
		cacheKey = rbac.DefaultCacheKey
	}
	return &AuthzOpsCLI{store: store, cache: cache, cacheKey: cacheKey, jobs: jobs}, nil
}

// Options carries the output streams shared by every command.
type Options struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// FlushCommand deletes the shared cache key. Running processes keep their
// bindings until they re-register.
func (c *AuthzOpsCLI) FlushCommand(ctx context.Context, opts Options) int {
	if err := c.cache.Forget(ctx, c.cacheKey); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "authz flush: %v\n", err)
		return 1
	}
	return c.print(opts, map[string]any{"flushed": c.cacheKey}, func(w io.Writer) {
		_, _ = fmt.Fprintf(w, "flushed %s\n", c.cacheKey)
	})
}

// RefreshCommand enqueues a refresh job for the worker.
func (c *AuthzOpsCLI) RefreshCommand(ctx context.Context, flush bool, opts Options) int {
	if c.jobs == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "authz refresh: job client not configured")
		return 1
	}
	id, err := c.jobs.EnqueueRefresh(ctx, flush)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "authz refresh: %v\n", err)
		return 1
	}
	return c.print(opts, map[string]any{"task_id": id, "flush": flush}, func(w io.Writer) {
		_, _ = fmt.Fprintf(w, "enqueued refresh %s (flush=%t)\n", id, flush)
	})
}

// ListCommand prints the permissions the store would bind. Exit code 2
// signals that the store was unavailable.
func (c *AuthzOpsCLI) ListCommand(ctx context.Context, opts Options) int {
	perms, err := c.store.FetchAll(ctx)
	if errors.Is(err, rbac.ErrStorageUnavailable) {
		_, _ = fmt.Fprintf(opts.Stderr, "authz list: %v\n", err)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "authz list: %v\n", err)
		return 1
	}
	if perms == nil {
		perms = []rbac.Permission{}
	}
	return c.print(opts, perms, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION")
		for _, p := range perms {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, p.Name, p.Description)
		}
		_ = tw.Flush()
	})
}

func (c *AuthzOpsCLI) print(opts Options, v any, human func(io.Writer)) int {
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(v); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "authz: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	human(opts.Stdout)
	return 0
}
