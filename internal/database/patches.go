package database

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed patches/*.sql
var embeddedPatches embed.FS

// ErrChecksumMismatch means a patch that was already applied has been edited
// since. Applied patches are immutable; ship a new patch instead.
var ErrChecksumMismatch = errors.New("applied patch was modified")

// Patch is one named SQL script applied by hand against the onboarding
// database.
type Patch struct {
	Name     string
	SQL      string
	Checksum string
}

// AppliedPatch is a row of schema_patches.
type AppliedPatch struct {
	Name      string
	Checksum  string
	AppliedAt time.Time
}

// PatchStatus pairs a known patch with its applied state.
type PatchStatus struct {
	Patch
	Applied   bool
	AppliedAt time.Time
}

// EmbeddedPatches returns the patches compiled into the binary in name order.
func EmbeddedPatches() ([]Patch, error) {
	sub, err := fs.Sub(embeddedPatches, "patches")
	if err != nil {
		return nil, fmt.Errorf("open embedded patches: %w", err)
	}
	return LoadPatches(sub)
}

// LoadPatches reads every *.sql file at the root of fsys. Names sort
// lexically, so patches are prefixed with a zero-padded sequence number.
func LoadPatches(fsys fs.FS) ([]Patch, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list patches: %w", err)
	}
	sort.Strings(names)
	patches := make([]Patch, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read patch %s: %w", name, err)
		}
		sql := string(data)
		if strings.TrimSpace(sql) == "" {
			return nil, fmt.Errorf("patch %s is empty", name)
		}
		patches = append(patches, Patch{
			Name:     strings.TrimSuffix(name, ".sql"),
			SQL:      sql,
			Checksum: Checksum(sql),
		})
	}
	return patches, nil
}

// Checksum fingerprints patch SQL. Line endings are normalized so a checkout
// on Windows does not look like an edit.
func Checksum(sql string) string {
	sum := sha256.Sum256([]byte(strings.ReplaceAll(sql, "\r\n", "\n")))
	return hex.EncodeToString(sum[:])
}

// Plan matches known patches against the applied rows. Any applied patch
// whose checksum differs fails the whole plan.
func Plan(patches []Patch, applied []AppliedPatch) ([]PatchStatus, error) {
	byName := make(map[string]AppliedPatch, len(applied))
	for _, a := range applied {
		byName[a.Name] = a
	}
	var mismatched []string
	out := make([]PatchStatus, 0, len(patches))
	for _, p := range patches {
		st := PatchStatus{Patch: p}
		if a, ok := byName[p.Name]; ok {
			if a.Checksum != p.Checksum {
				mismatched = append(mismatched, p.Name)
			}
			st.Applied = true
			st.AppliedAt = a.AppliedAt
		}
		out = append(out, st)
	}
	if len(mismatched) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, strings.Join(mismatched, ", "))
	}
	return out, nil
}

// Pending filters a plan down to the patches not yet applied.
func Pending(plan []PatchStatus) []Patch {
	var out []Patch
	for _, st := range plan {
		if !st.Applied {
			out = append(out, st.Patch)
		}
	}
	return out
}

// Patcher applies patches and records them in schema_patches.
type Patcher struct {
	pool    *pgxpool.Pool
	patches []Patch
}

// NewPatcher constructs a patcher over a fixed patch list.
func NewPatcher(pool *pgxpool.Pool, patches []Patch) *Patcher {
	return &Patcher{pool: pool, patches: patches}
}

// Status returns every known patch with its applied state.
func (p *Patcher) Status(ctx context.Context) ([]PatchStatus, error) {
	if err := EnsureSchema(ctx, p.pool); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, `SELECT name, checksum, applied_at FROM schema_patches ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select applied patches: %w", err)
	}
	applied, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AppliedPatch, error) {
		var a AppliedPatch
		err := row.Scan(&a.Name, &a.Checksum, &a.AppliedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan applied patches: %w", err)
	}
	return Plan(p.patches, applied)
}

// Apply runs every pending patch in order, each in its own transaction, and
// stops at the first failure. With dryRun it only reports what would run.
func (p *Patcher) Apply(ctx context.Context, dryRun bool) ([]Patch, error) {
	plan, err := p.Status(ctx)
	if err != nil {
		return nil, err
	}
	pending := Pending(plan)
	if dryRun {
		return pending, nil
	}
	var done []Patch
	for _, patch := range pending {
		err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, patch.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_patches (name, checksum, applied_at) VALUES ($1,$2,$3)`,
				patch.Name, patch.Checksum, time.Now().UTC())
			return err
		})
		if err != nil {
			return done, fmt.Errorf("apply patch %s: %w", patch.Name, err)
		}
		done = append(done, patch)
	}
	return done, nil
}
