// Package directory reconciles the identity provider's user directory into
// the local_users table.
//
// Engine performs one reconciliation (RunSync); Scheduler runs it on an
// interval and on demand, never two at a time.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
	"github.com/SevenofThr4wn/HardwareStore/internal/db/models"
	"github.com/SevenofThr4wn/HardwareStore/internal/keycloak"
	"github.com/SevenofThr4wn/HardwareStore/internal/repository"
	"github.com/SevenofThr4wn/HardwareStore/internal/telemetry"
)

const tracerName = "storeapi/services/directory"

// Directory is the read side of the identity provider used by sync.
// *keycloak.Client implements it.
type Directory interface {
	ExchangeAdminCredentialsForToken(ctx context.Context) (*oauth2.Token, error)
	ListDirectoryUsers(ctx context.Context, tok *oauth2.Token, page keycloak.Page) ([]keycloak.DirectoryUser, error)
	GetUserRoleAssignments(ctx context.Context, tok *oauth2.Token, externalID string) ([]keycloak.RoleAssignment, error)
}

var _ Directory = (*keycloak.Client)(nil)

// Failure stages
const (
	StageValidate = "validate"
	StageRoles    = "roles"
	StageUpsert   = "upsert"
)

// UserFailure records one user skipped by a run.
type UserFailure struct {
	ExternalID string `json:"external_id,omitempty"`
	Username   string `json:"username,omitempty"`
	Stage      string `json:"stage"`
	Err        error  `json:"-"`
}

func (f UserFailure) MarshalJSON() ([]byte, error) {
	type alias UserFailure
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		alias
		Error string `json:"error,omitempty"`
	}{alias(f), msg})
}

// SyncRun summarizes one reconciliation.
//
// Processed counts users returned by the directory. Every processed user
// ends up in exactly one of Created, Updated, Unchanged or Skipped.
// Err is set when the run ended early: a token or listing failure, or
// cancellation. Nothing is written after a listing failure.
type SyncRun struct {
	ID         string        `json:"id"`
	Trigger    string        `json:"trigger,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Processed  int           `json:"processed"`
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Unchanged  int           `json:"unchanged"`
	Skipped    int           `json:"skipped"`
	Failures   []UserFailure `json:"failures,omitempty"`
	Err        error         `json:"-"`
}

// Succeeded reports whether the run reached the end of the directory.
func (r SyncRun) Succeeded() bool { return r.Err == nil }

func (r SyncRun) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

func (r SyncRun) MarshalJSON() ([]byte, error) {
	type alias SyncRun
	msg := ""
	if r.Err != nil {
		msg = r.Err.Error()
	}
	return json.Marshal(struct {
		alias
		DurationMs int64  `json:"duration_ms"`
		Error      string `json:"error,omitempty"`
	}{alias(r), r.Duration().Milliseconds(), msg})
}

func (r *SyncRun) count(result repository.UpsertResult) {
	switch result {
	case repository.UpsertCreated:
		r.Created++
	case repository.UpsertUpdated:
		r.Updated++
	case repository.UpsertUnchanged:
		r.Unchanged++
	}
}

func (r *SyncRun) skip(f UserFailure) {
	r.Skipped++
	r.Failures = append(r.Failures, f)
}

// Options tunes an Engine. Zero values fall back to the defaults.
type Options struct {
	PageSize     int    // users per list call, default 100
	Workers      int    // concurrent role fetches, default 1 (sequential)
	FallbackRole string // role for users with no provider roles, default Staff
	Metrics      *telemetry.SyncMetrics
}

// Engine reconciles the directory into the local user store.
type Engine struct {
	dir    Directory
	users  repository.LocalUserRepository
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(dir Directory, users repository.LocalUserRepository, opts Options, logger *zap.Logger) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.FallbackRole == "" {
		opts.FallbackRole = auth.RoleStaff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		dir:    dir,
		users:  users,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// roleFetch is the outcome of one role-mapping call.
type roleFetch struct {
	names []string
	err   error
}

// Run triggers
const (
	TriggerStartup  = "startup"
	TriggerInterval = "interval"
	TriggerManual   = "manual"
)

// RunSync performs one full reconciliation and always returns a SyncRun;
// run.Err carries the terminal error, if any. A panic inside the run is
// recovered into run.Err.
func (e *Engine) RunSync(ctx context.Context) SyncRun {
	return e.runSync(ctx, TriggerManual)
}

func (e *Engine) runSync(ctx context.Context, trigger string) (run SyncRun) {
	run = SyncRun{ID: uuid.NewString(), Trigger: trigger, StartedAt: e.now()}
	logger := e.logger.With(zap.String("run_id", run.ID))

	ctx, span := telemetry.StartSpan(ctx, tracerName, "directory.RunSync",
		attribute.String(telemetry.AttrSyncRunID, run.ID),
		attribute.String(telemetry.AttrSyncTrigger, trigger),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("directory sync panicked", zap.Any("panic", r))
			run.Err = fmt.Errorf("directory sync panicked: %v", r)
		}
		run.FinishedAt = e.now()
		span.SetAttributes(
			attribute.Int(telemetry.AttrSyncProcessed, run.Processed),
			attribute.Int(telemetry.AttrSyncCreated, run.Created),
			attribute.Int(telemetry.AttrSyncUpdated, run.Updated),
			attribute.Int(telemetry.AttrSyncUnchanged, run.Unchanged),
			attribute.Int(telemetry.AttrSyncSkipped, run.Skipped),
		)
		telemetry.RecordError(span, run.Err)
		e.opts.Metrics.RecordRun(ctx, run.Succeeded(), run.Duration().Seconds(), map[string]int{
			string(repository.UpsertCreated):   run.Created,
			string(repository.UpsertUpdated):   run.Updated,
			string(repository.UpsertUnchanged): run.Unchanged,
			"skipped":                          run.Skipped,
		})
		e.logRun(logger, run)
	}()

	tok, err := e.dir.ExchangeAdminCredentialsForToken(ctx)
	if err != nil {
		run.Err = fmt.Errorf("obtain admin token: %w", err)
		return run
	}

	users, err := e.listAll(ctx, tok)
	if err != nil {
		run.Err = err
		return run
	}
	run.Processed = len(users)

	roles, err := e.fetchRoles(ctx, tok, users)
	if err != nil {
		run.Err = err
		return run
	}

	// Writes stay sequential and in provider order.
	for i, du := range users {
		if err := ctx.Err(); err != nil {
			run.Err = err
			return run
		}

		if err := auth.ValidateSubject(du.ID); err != nil {
			f := UserFailure{ExternalID: du.ID, Username: du.Username, Stage: StageValidate, Err: fmt.Errorf("directory user id: %w", err)}
			run.skip(f)
			e.logSkipped(logger, f)
			continue
		}
		if roles[i].err != nil {
			f := UserFailure{ExternalID: du.ID, Username: du.Username, Stage: StageRoles, Err: roles[i].err}
			run.skip(f)
			e.logSkipped(logger, f)
			continue
		}

		desired := localUserFrom(du, auth.DerivePrimaryRole(roles[i].names, e.opts.FallbackRole))
		result, err := e.users.Upsert(ctx, desired)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				run.Err = ctxErr
				return run
			}
			f := UserFailure{ExternalID: du.ID, Username: du.Username, Stage: StageUpsert, Err: err}
			run.skip(f)
			e.logSkipped(logger, f)
			continue
		}
		run.count(result)

		level := zap.InfoLevel
		if result == repository.UpsertUnchanged {
			level = zap.DebugLevel
		}
		logger.Log(level, "directory user synced",
			zap.String("external_id", du.ID),
			zap.String("username", du.Username),
			zap.String("role", desired.Role),
			zap.String("result", string(result)))
	}

	return run
}

// listAll pages through the directory until a short page.
func (e *Engine) listAll(ctx context.Context, tok *oauth2.Token) ([]keycloak.DirectoryUser, error) {
	var all []keycloak.DirectoryUser
	page := keycloak.Page{First: 0, Max: e.opts.PageSize}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		users, err := e.dir.ListDirectoryUsers(ctx, tok, page)
		if err != nil {
			return nil, fmt.Errorf("list directory users: %w", err)
		}
		all = append(all, users...)
		if len(users) < page.Max {
			return all, nil
		}
		page = page.Next()
	}
}

// fetchRoles loads role names for every user with a valid id on a bounded pool.
// Per-user failures are kept in the result; only cancellation is returned.
func (e *Engine) fetchRoles(ctx context.Context, tok *oauth2.Token, users []keycloak.DirectoryUser) ([]roleFetch, error) {
	results := make([]roleFetch, len(users))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, du := range users {
		if auth.ValidateSubject(du.ID) != nil {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			assignments, err := e.dir.GetUserRoleAssignments(gctx, tok, du.ID)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				results[i] = roleFetch{err: fmt.Errorf("fetch role mappings: %w", err)}
				return nil
			}
			results[i] = roleFetch{names: keycloak.RoleNames(assignments)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func localUserFrom(du keycloak.DirectoryUser, role string) *models.LocalUser {
	return &models.LocalUser{
		ExternalID:        du.ID,
		Username:          du.Username,
		FirstName:         du.FirstName,
		LastName:          du.LastName,
		FullName:          du.FullName(),
		Email:             du.Email,
		Active:            du.Enabled,
		EmailVerified:     du.EmailVerified,
		Role:              role,
		ProviderCreatedAt: du.CreatedAt(),
	}
}

func (e *Engine) logSkipped(logger *zap.Logger, f UserFailure) {
	logger.Warn("directory user skipped",
		zap.String("external_id", f.ExternalID),
		zap.String("username", f.Username),
		zap.String("stage", f.Stage),
		zap.Error(f.Err))
}

func (e *Engine) logRun(logger *zap.Logger, run SyncRun) {
	fields := []zap.Field{
		zap.String("trigger", run.Trigger),
		zap.Int("processed", run.Processed),
		zap.Int("created", run.Created),
		zap.Int("updated", run.Updated),
		zap.Int("unchanged", run.Unchanged),
		zap.Int("skipped", run.Skipped),
		zap.Duration("duration", run.Duration()),
	}
	if run.Err != nil {
		logger.Error("directory sync failed", append(fields, zap.Error(run.Err))...)
		return
	}
	logger.Info("directory sync finished", fields...)
}
