// Package dispatch turns a build submission into per-project builds and jobs
// and publishes their tasks.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zulandar/buildyard/internal/build"
	"github.com/zulandar/buildyard/internal/diff"
	"github.com/zulandar/buildyard/internal/logging"
	"github.com/zulandar/buildyard/internal/models"
	"github.com/zulandar/buildyard/internal/notify"
	"github.com/zulandar/buildyard/internal/queue"
	"gorm.io/gorm"
)

var (
	// ErrNoTarget is returned when a request names no project or repository.
	ErrNoTarget = errors.New("dispatch: project or repository must be specified")
	// ErrNoProjects is returned when the target matches no active project.
	ErrNoProjects = errors.New("dispatch: unable to find project(s)")
	// ErrInvalidPatchData is returned when patch metadata is not a JSON object.
	ErrInvalidPatchData = errors.New("dispatch: invalid patch data (must be a JSON object)")
	// ErrNoEligibleProjects is returned when every project was skipped.
	ErrNoEligibleProjects = errors.New("dispatch: no eligible projects")
)

const (
	defaultLabel = "A homeless build"
	patchTag     = "patch"
	targetSHALen = 12
)

// RevisionResolver maps a reference to a stored revision.
type RevisionResolver interface {
	Resolve(ctx context.Context, repo *models.Repository, ref string) (*models.Revision, error)
}

// Request is one build submission.
type Request struct {
	Target Target
	Ref    string // branch, tag or sha; with a patch, the revision it applies to

	// Optional overrides; empty values default from the resolved revision.
	Author      string
	Label       string
	BuildTarget string
	Message     *string // nil defaults; a non-nil empty string is kept
	Tag         string
	Cause       string

	Patch     []byte // unified diff
	PatchData []byte // JSON object stored on the patched source
}

// Dispatcher fans submissions out into builds. It holds no per-request
// state and may be shared across goroutines.
type Dispatcher struct {
	DB       *gorm.DB
	Resolver RevisionResolver
	Queue    queue.Enqueuer
	Notifier notify.Notifier
	Log      *slog.Logger

	// GreenAncestor applies patches to the newest known-green revision of
	// each project rather than the submitted one.
	GreenAncestor bool
}

// Submit creates one build per eligible project, all sharing a fresh
// collection id, and publishes their tasks.
//
// Input and resolution errors are returned before anything is written. Each
// project commits in its own transaction; a failed project does not undo its
// siblings, and its error is returned joined alongside the builds that were
// created. Tasks that fail to publish after commit are left for the
// reconcile sweep.
func (d *Dispatcher) Submit(ctx context.Context, req Request) ([]models.Build, error) {
	log := logging.OrDefault(d.Log)

	if req.Target.IsZero() {
		return nil, ErrNoTarget
	}
	patchData, err := parsePatchData(req.PatchData)
	if err != nil {
		return nil, err
	}

	repo, projects, err := ResolveTarget(d.DB.WithContext(ctx), req.Target, log)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, fmt.Errorf("%w: %s has no active projects", ErrNoProjects, repo.URL)
	}

	rev, err := d.Resolver.Resolve(ctx, repo, req.Ref)
	if err != nil {
		return nil, err
	}
	opts := defaults(req, rev)

	hasPatch := len(req.Patch) > 0
	var changed map[string]struct{}
	if hasPatch {
		if changed, err = diff.ChangedFiles(string(req.Patch)); err != nil {
			return nil, err
		}
	}

	collectionID := models.NewID()
	patches := make(map[string]*models.Patch) // by the sha a patch is applied to
	log = log.With("collection", collectionID, "repository", repo.URL)

	var (
		builds []models.Build
		errs   []error
	)
	for i := range projects {
		project := &projects[i]

		plans, err := build.ActivePlans(d.DB.WithContext(ctx), project.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(plans) == 0 {
			log.Warn("no plans defined for project", "project", project.Slug)
			continue
		}

		if len(changed) > 0 {
			whitelist, err := build.ProjectWhitelist(d.DB.WithContext(ctx), project.ID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !diff.MatchesWhitelist(changed, whitelist) {
				log.Info("no changed files matched file whitelist", "project", project.Slug)
				continue
			}
		}

		sha := rev.SHA
		var patch *models.Patch
		if hasPatch {
			if d.GreenAncestor {
				sha = build.FindBetterSHA(d.DB.WithContext(ctx), project, rev.SHA, log)
			}
			patch = patches[sha]
			if patch == nil {
				patch = &models.Patch{
					ID:                models.NewID(),
					RepositoryID:      repo.ID,
					ParentRevisionSHA: rev.SHA,
					Diff:              string(req.Patch),
				}
				patches[sha] = patch
			}
		}

		b, err := d.createBuild(ctx, repo, project, plans, collectionID, sha, patch, patchData, opts)
		if err != nil {
			log.Error("build not created", "project", project.Slug, "error", err)
			errs = append(errs, err)
			continue
		}
		log.Info("build created", "project", project.Slug, "build", b.ID, "sha", sha, "jobs", len(b.Jobs))

		if err := Publish(ctx, d.DB, d.Queue, b); err != nil {
			log.Error("build not dispatched", "project", project.Slug, "build", b.ID, "error", err)
			notify.Send(ctx, d.Notifier, log, notify.Alert{
				Title:    "Build committed but not dispatched",
				Body:     err.Error(),
				Severity: notify.SeverityError,
				Fields: []notify.Field{
					{Name: "project", Value: project.Slug, Short: true},
					{Name: "build", Value: b.ID, Short: true},
					{Name: "collection", Value: collectionID},
				},
			})
		}
		builds = append(builds, *b)
	}

	if len(builds) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, ErrNoEligibleProjects
	}
	return builds, errors.Join(errs...)
}

// createBuild writes the source, build, jobs and job plans of one project in
// a single transaction.
func (d *Dispatcher) createBuild(ctx context.Context, repo *models.Repository, project *models.Project, plans []models.Plan,
	collectionID, sha string, patch *models.Patch, patchData map[string]interface{}, opts build.CreateOpts) (*models.Build, error) {
	var b *models.Build
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if patch != nil {
			if err := build.EnsurePatch(tx, patch); err != nil {
				return err
			}
		}
		src, err := build.MakeSource(tx, build.SourceOpts{
			Repository: repo,
			SHA:        sha,
			Patch:      patch,
			Data:       patchData,
		})
		if err != nil {
			return err
		}

		opts.Project = project
		opts.CollectionID = collectionID
		opts.Source = src
		if b, err = build.Create(tx, opts); err != nil {
			return err
		}
		_, err = build.CreateJobs(tx, b, plans)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch: project %s: %w", project.Slug, err)
	}
	return b, nil
}

// Publish enqueues a create_job task for each of b's jobs, then the build's
// sync_build task, and finally marks b dispatched. The sync task is only
// published once every job task has been accepted.
func Publish(ctx context.Context, db *gorm.DB, q queue.Enqueuer, b *models.Build) error {
	for _, job := range b.Jobs {
		if err := q.Enqueue(ctx, queue.CreateJob(job.ID, b.ID)); err != nil {
			return err
		}
	}
	if err := q.Enqueue(ctx, queue.SyncBuild(b.ID)); err != nil {
		return err
	}

	now := time.Now()
	if err := db.WithContext(ctx).Model(&models.Build{}).
		Where("id = ?", b.ID).
		Update("dispatched_at", now).Error; err != nil {
		return fmt.Errorf("dispatch: mark %s dispatched: %w", b.ID, err)
	}
	b.DispatchedAt = &now
	return nil
}

// defaults fills the request's optional fields from rev.
func defaults(req Request, rev *models.Revision) build.CreateOpts {
	opts := build.CreateOpts{
		Author: req.Author,
		Label:  req.Label,
		Target: req.BuildTarget,
		Cause:  req.Cause,
		Tag:    req.Tag,
	}
	if opts.Author == "" {
		opts.Author = rev.Author
	}
	if opts.Label == "" {
		opts.Label = rev.Subject
	}
	if req.Message != nil {
		opts.Message = *req.Message
	} else {
		opts.Message = rev.Message
	}
	if opts.Target == "" {
		opts.Target = rev.SHA
		if len(opts.Target) > targetSHALen {
			opts.Target = opts.Target[:targetSHALen]
		}
	}
	if opts.Label == "" && opts.Message != "" {
		opts.Label, _, _ = strings.Cut(opts.Message, "\n")
	}
	if opts.Label == "" {
		opts.Label = defaultLabel
	}
	if opts.Tag == "" && len(req.Patch) > 0 {
		opts.Tag = patchTag
	}
	return opts
}

func parsePatchData(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		return nil, ErrInvalidPatchData
	}
	return data, nil
}
