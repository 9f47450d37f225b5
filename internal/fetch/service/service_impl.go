package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/finanze/finanze/internal/clock"
	"github.com/finanze/finanze/internal/config"
	credentialdomain "github.com/finanze/finanze/internal/credential/domain"
	"github.com/finanze/finanze/internal/entity"
	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	fetchdomain "github.com/finanze/finanze/internal/fetch/domain"
	recorddomain "github.com/finanze/finanze/internal/fetchrecord/domain"
	positiondomain "github.com/finanze/finanze/internal/position/domain"
	sessiondomain "github.com/finanze/finanze/internal/session/domain"
	"github.com/finanze/finanze/pkg/keymutex"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	loginTimeout = 120 * time.Second
	fetchTimeout = 180 * time.Second

	maxEntityParallelism = 8

	rateLimitAttempts = 3
	rateLimitBase     = 2 * time.Second
	rateLimitCap      = 30 * time.Second
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Registry    *entity.Registry
	Credentials credentialdomain.Repository
	Sessions    sessiondomain.Repository
	Records     recorddomain.Repository
	Positions   positiondomain.Repository
	Scrape      *config.ScrapeConfigHolder
	Node        *snowflake.Node
	Clock       clock.Clock
	Log         *zap.Logger
}

type service struct {
	db          *gorm.DB
	registry    *entity.Registry
	credentials credentialdomain.Repository
	sessions    sessiondomain.Repository
	records     recorddomain.Repository
	positions   positiondomain.Repository
	scrape      *config.ScrapeConfigHolder
	node        *snowflake.Node
	clk         clock.Clock
	locks       *keymutex.Mutex
	log         *zap.Logger

	// sleep is swapped out by tests to skip backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(p Params) fetchdomain.Service {
	return &service{
		db:          p.DB,
		registry:    p.Registry,
		credentials: p.Credentials,
		sessions:    p.Sessions,
		records:     p.Records,
		positions:   p.Positions,
		scrape:      p.Scrape,
		node:        p.Node,
		clk:         p.Clock,
		locks:       keymutex.New(),
		log:         p.Log.Named("fetch.service"),
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type planEntry struct {
	conn     entitydomain.Connector
	features []entitydomain.Feature
}

func (s *service) Run(ctx context.Context, req fetchdomain.Request) (fetchdomain.Result, error) {
	plan, err := s.plan(ctx, req)
	if err != nil {
		return fetchdomain.Result{}, err
	}
	if len(plan) == 0 {
		return fetchdomain.Result{Code: fetchdomain.ResultNoOp, Entities: []fetchdomain.EntityResult{}}, nil
	}

	results := make([]fetchdomain.EntityResult, len(plan))
	g, gctx := errgroup.WithContext(ctx)
	limit := maxEntityParallelism
	if len(plan) < limit {
		limit = len(plan)
	}
	g.SetLimit(limit)
	for i, p := range plan {
		g.Go(func() error {
			results[i] = s.runEntity(gctx, p, req)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return fetchdomain.Result{}, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].EntityID.String() < results[j].EntityID.String()
	})
	for _, r := range results {
		entityOutcomes.WithLabelValues(string(r.Code)).Inc()
		for f, pair := range r.Pairs {
			pairOutcomes.WithLabelValues(string(f), string(pair.Status)).Inc()
		}
	}

	code := aggregateCode(results)
	s.log.Info("fetch run finished",
		zap.String("code", string(code)),
		zap.Int("entities", len(results)),
		zap.Bool("force", req.Force),
	)
	return fetchdomain.Result{Code: code, Entities: results}, nil
}

// plan resolves the requested entities and features into concrete
// (connector, supported features) pairs. Unsupported features are dropped per
// entity; unknown entity ids are an error.
func (s *service) plan(ctx context.Context, req fetchdomain.Request) ([]planEntry, error) {
	var features []entitydomain.Feature
	if len(req.Features) == 0 {
		features = []entitydomain.Feature{
			entitydomain.FeaturePositions,
			entitydomain.FeatureTransactions,
			entitydomain.FeatureAutoContributions,
			entitydomain.FeatureHistoric,
		}
	} else {
		features = make([]entitydomain.Feature, 0, len(req.Features))
		for _, f := range req.Features {
			parsed, err := entitydomain.ParseFeature(string(f))
			if err != nil {
				return nil, err
			}
			features = append(features, parsed)
		}
	}

	ids := req.EntityIDs
	if len(ids) == 0 {
		available, err := s.credentials.ListAvailable(ctx, s.db)
		if err != nil {
			return nil, err
		}
		for _, id := range available {
			if _, ok := s.registry.Lookup(id); ok {
				ids = append(ids, id)
			}
		}
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	plan := make([]planEntry, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		conn, ok := s.registry.Lookup(id)
		if !ok {
			return nil, fetchdomain.ErrUnknownEntity
		}
		supported := conn.Entity().SupportedSubset(features)
		if len(supported) == 0 {
			continue
		}
		plan = append(plan, planEntry{conn: conn, features: supported})
	}
	return plan, nil
}

func (s *service) runEntity(ctx context.Context, p planEntry, req fetchdomain.Request) fetchdomain.EntityResult {
	ent := p.conn.Entity()
	res := fetchdomain.EntityResult{
		EntityID: ent.ID,
		Name:     ent.Name,
		Pairs:    map[entitydomain.Feature]fetchdomain.PairOutcome{},
	}

	release, err := s.locks.Acquire(ctx, ent.ID.String())
	if err != nil {
		res.Code = fetchdomain.EntityFailed
		res.Message = err.Error()
		return res
	}
	defer release()

	creds, code, msg := s.loadCredentials(ctx, p.conn)
	if code != "" {
		res.Code = code
		res.Message = msg
		return res
	}

	cooldown := s.scrape.Get().Cooldown(ent.ID.String())
	now := s.clk.Now()

	// The cooldown gate runs before any session work, so an entity whose
	// every pair is still cooling down stays a pure no-op: no login, no writes.
	active := make([]entitydomain.Feature, 0, len(p.features))
	for _, f := range p.features {
		if !req.Force {
			if last, ok := s.records.Latest(ent.ID, f); ok {
				if remaining := cooldown - now.Sub(last); remaining > 0 {
					lu := last
					res.Pairs[f] = fetchdomain.PairOutcome{
						Status:     fetchdomain.PairCooldown,
						Wait:       int64((remaining + time.Second - 1) / time.Second),
						LastUpdate: &lu,
					}
					continue
				}
			}
		}
		active = append(active, f)
	}
	if len(active) == 0 {
		res.Code = entityCode(res.Pairs)
		return res
	}

	sessionPayload, code, msg := s.ensureSession(ctx, p.conn, creds, req)
	if code != "" {
		res.Code = code
		res.Message = msg
		return res
	}

	var (
		snapshots []positiondomain.Snapshot
		records   []recorddomain.Record
		pending   []entitydomain.Feature
	)
	for _, f := range active {
		raw, kind, err := s.fetchPair(ctx, p.conn, &sessionPayload, creds, f, req)
		if err != nil {
			s.log.Warn("pair fetch failed",
				zap.String("entity", ent.Name),
				zap.String("feature", string(f)),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			res.Pairs[f] = fetchdomain.PairOutcome{Status: fetchdomain.PairFailed, FailureKind: kind}
			continue
		}

		date := s.clk.Now()
		snapshots = append(snapshots, positiondomain.Snapshot{
			EntityID: ent.ID,
			Feature:  f,
			Payload:  datatypes.JSON(raw),
			Date:     date,
		})
		records = append(records, recorddomain.Record{
			ID:       s.node.Generate(),
			EntityID: ent.ID,
			Feature:  f,
			Date:     date,
		})
		pending = append(pending, f)
	}

	if len(pending) > 0 {
		// Successful pairs commit even when the run was cancelled mid-entity;
		// snapshots and records land in one transaction or not at all.
		commitCtx := context.WithoutCancel(ctx)
		err := s.db.WithContext(commitCtx).Transaction(func(tx *gorm.DB) error {
			if err := s.positions.PutBatch(commitCtx, tx, snapshots); err != nil {
				return err
			}
			return s.records.Append(commitCtx, tx, records)
		})
		if err != nil {
			// A storage failure is ours, not the entity's; the transaction
			// rolled back, so no records were appended either.
			s.log.Error("batch commit failed", zap.String("entity", ent.Name), zap.Error(err))
			res.Message = err.Error()
			for _, f := range pending {
				res.Pairs[f] = fetchdomain.PairOutcome{Status: fetchdomain.PairFailed, FailureKind: entitydomain.FailInternal}
			}
		} else {
			s.records.Observe(records)
			for _, f := range pending {
				res.Pairs[f] = fetchdomain.PairOutcome{Status: fetchdomain.PairDone}
			}
		}
	}

	res.Code = entityCode(res.Pairs)
	return res
}

// fetchPair runs one (entity, feature) fetch with the retry policy: an expired
// session earns a single re-login and retry per pair, and a second expiry after
// the re-login is reported as an upstream error; rate limiting earns up to
// three attempts with exponential backoff.
func (s *service) fetchPair(ctx context.Context, conn entitydomain.Connector, session *json.RawMessage, creds entitydomain.Credentials, f entitydomain.Feature, req fetchdomain.Request) (json.RawMessage, entitydomain.FailureKind, error) {
	opts := entitydomain.FetchOptions{Deep: req.Deep}
	attempts := 0
	relogged := false
	for {
		fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		raw, err := conn.Fetch(fctx, *session, f, opts)
		cancel()
		if err == nil {
			return raw, "", nil
		}

		kind := entitydomain.FailureKindOf(err)
		switch kind {
		case entitydomain.FailSessionExpired:
			if relogged {
				return nil, entitydomain.FailUpstream, err
			}
			relogged = true
			payload, code, _ := s.loginWith(ctx, conn, creds, req, *session)
			if code != "" {
				return nil, kind, err
			}
			*session = payload
		case entitydomain.FailRateLimited:
			attempts++
			if attempts >= rateLimitAttempts {
				return nil, kind, err
			}
			backoff := rateLimitBase << (attempts - 1)
			if backoff > rateLimitCap {
				backoff = rateLimitCap
			}
			if sleepErr := s.sleep(ctx, backoff); sleepErr != nil {
				return nil, kind, err
			}
		default:
			return nil, kind, err
		}
	}
}

func (s *service) loadCredentials(ctx context.Context, conn entitydomain.Connector) (entitydomain.Credentials, fetchdomain.EntityCode, string) {
	rec, err := s.credentials.Get(ctx, s.db, conn.Entity().ID)
	if errors.Is(err, credentialdomain.ErrNotFound) {
		return nil, fetchdomain.EntityNotConnected, ""
	}
	if err != nil {
		return nil, fetchdomain.EntityFailed, err.Error()
	}

	var creds entitydomain.Credentials
	if err := json.Unmarshal(rec.Blob, &creds); err != nil {
		return nil, fetchdomain.EntityMissingFields, "credential blob is not decodable"
	}
	for _, field := range conn.CredentialFields() {
		if creds[field] == "" {
			return nil, fetchdomain.EntityMissingFields, "missing credential field " + field
		}
	}
	return creds, "", ""
}

// ensureSession returns a usable session payload, reusing the stored session
// when it is still fresh. An expired or missing session triggers a login with
// the stored payload offered for resumption.
func (s *service) ensureSession(ctx context.Context, conn entitydomain.Connector, creds entitydomain.Credentials, req fetchdomain.Request) (json.RawMessage, fetchdomain.EntityCode, string) {
	stored, err := s.sessions.Get(ctx, s.db, conn.Entity().ID)
	if err != nil {
		return nil, fetchdomain.EntityFailed, err.Error()
	}
	if stored != nil && !stored.Expired(s.clk.Now()) {
		return json.RawMessage(stored.Payload), "", ""
	}

	var resume json.RawMessage
	if stored != nil {
		resume = json.RawMessage(stored.Payload)
	}
	return s.loginWith(ctx, conn, creds, req, resume)
}

func (s *service) loginWith(ctx context.Context, conn entitydomain.Connector, creds entitydomain.Credentials, req fetchdomain.Request, resume json.RawMessage) (json.RawMessage, fetchdomain.EntityCode, string) {
	lctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	result, err := conn.Login(lctx, creds, entitydomain.LoginParams{
		TwoFactorCode: req.TwoFactorCode,
		DeviceID:      req.DeviceID,
		Resume:        resume,
	})
	if err != nil {
		return nil, fetchdomain.EntityUnavailable, err.Error()
	}

	switch result.Code {
	case entitydomain.LoginOK:
	case entitydomain.LoginInvalidCredentials:
		return nil, fetchdomain.EntityInvalidCredentials, result.Message
	case entitydomain.LoginTwoFactorRequired:
		return nil, fetchdomain.EntityTwoFactorRequired, result.Message
	case entitydomain.LoginLocked:
		return nil, fetchdomain.EntityLocked, result.Message
	default:
		return nil, fetchdomain.EntityUnavailable, result.Message
	}
	if result.Session == nil {
		return nil, fetchdomain.EntityUnavailable, "login returned no session"
	}

	sess := sessiondomain.Session{
		EntityID:   conn.Entity().ID,
		CreatedAt:  s.clk.Now(),
		Expiration: result.Session.Expiration,
		Payload:    datatypes.JSON(result.Session.Payload),
	}
	if err := s.sessions.Upsert(ctx, s.db, sess); err != nil {
		return nil, fetchdomain.EntityFailed, err.Error()
	}
	return result.Session.Payload, "", ""
}

func (s *service) Connect(ctx context.Context, entityID uuid.UUID, credentials entitydomain.Credentials, opts fetchdomain.LoginOptions) (fetchdomain.ConnectResult, error) {
	conn, ok := s.registry.Lookup(entityID)
	if !ok {
		return fetchdomain.ConnectResult{}, fetchdomain.ErrUnknownEntity
	}
	for _, field := range conn.CredentialFields() {
		if credentials[field] == "" {
			return fetchdomain.ConnectResult{}, fetchdomain.ErrMissingFields
		}
	}

	release, err := s.locks.Acquire(ctx, entityID.String())
	if err != nil {
		return fetchdomain.ConnectResult{}, err
	}
	defer release()

	lctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()
	result, err := conn.Login(lctx, credentials, entitydomain.LoginParams{
		TwoFactorCode: opts.TwoFactorCode,
		DeviceID:      opts.DeviceID,
	})
	if err != nil {
		return fetchdomain.ConnectResult{Code: entitydomain.LoginUnavailable, Message: err.Error()}, nil
	}
	if result.Code != entitydomain.LoginOK {
		return fetchdomain.ConnectResult{Code: result.Code, Message: result.Message}, nil
	}

	blob, err := json.Marshal(credentials)
	if err != nil {
		return fetchdomain.ConnectResult{}, err
	}
	now := s.clk.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.credentials.Put(ctx, tx, entityID, blob, now); err != nil {
			return err
		}
		if result.Session == nil {
			return nil
		}
		return s.sessions.Upsert(ctx, tx, sessiondomain.Session{
			EntityID:   entityID,
			CreatedAt:  now,
			Expiration: result.Session.Expiration,
			Payload:    datatypes.JSON(result.Session.Payload),
		})
	})
	if err != nil {
		return fetchdomain.ConnectResult{}, err
	}

	s.log.Info("entity connected", zap.String("entity", conn.Entity().Name))
	return fetchdomain.ConnectResult{Code: entitydomain.LoginOK}, nil
}

func (s *service) Disconnect(ctx context.Context, entityID uuid.UUID) error {
	conn, ok := s.registry.Lookup(entityID)
	if !ok {
		return fetchdomain.ErrUnknownEntity
	}

	release, err := s.locks.Acquire(ctx, entityID.String())
	if err != nil {
		return err
	}
	defer release()

	conn.Disconnect(ctx)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.sessions.Delete(ctx, tx, entityID); err != nil {
			return err
		}
		if err := s.credentials.Delete(ctx, tx, entityID); err != nil {
			return err
		}
		return s.positions.DeleteByEntity(ctx, tx, entityID)
	})
	if err != nil {
		return err
	}

	s.log.Info("entity disconnected", zap.String("entity", conn.Entity().Name))
	return nil
}

func entityCode(pairs map[entitydomain.Feature]fetchdomain.PairOutcome) fetchdomain.EntityCode {
	var done, failed, cooled int
	for _, p := range pairs {
		switch p.Status {
		case fetchdomain.PairDone:
			done++
		case fetchdomain.PairFailed:
			failed++
		case fetchdomain.PairCooldown:
			cooled++
		}
	}
	switch {
	case done > 0 && failed > 0:
		return fetchdomain.EntityPartial
	case done > 0:
		return fetchdomain.EntityCompleted
	case failed > 0:
		return fetchdomain.EntityFailed
	case cooled > 0:
		return fetchdomain.EntityCooldown
	default:
		return fetchdomain.EntityCompleted
	}
}

func aggregateCode(entities []fetchdomain.EntityResult) fetchdomain.ResultCode {
	if len(entities) == 0 {
		return fetchdomain.ResultNoOp
	}
	allCompleted, allCooldown, allAuth := true, true, true
	for _, e := range entities {
		if e.Code != fetchdomain.EntityCompleted {
			allCompleted = false
		}
		if e.Code != fetchdomain.EntityCooldown {
			allCooldown = false
		}
		if !e.Code.AuthRequired() {
			allAuth = false
		}
	}
	switch {
	case allCompleted:
		return fetchdomain.ResultCompleted
	case allCooldown:
		return fetchdomain.ResultNoOp
	case allAuth:
		return fetchdomain.ResultAuthRequired
	default:
		return fetchdomain.ResultPartial
	}
}
