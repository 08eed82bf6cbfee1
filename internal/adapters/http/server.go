// Package httpadapter implements the generated StrictServerInterface against
// the dispatch, refresh, review, and auth services.
package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"screenguard/internal/api"
	"screenguard/internal/apperr"
	"screenguard/internal/domain"
	"screenguard/internal/fingerprint"
	"screenguard/internal/matching"
	"screenguard/internal/ports"
	"screenguard/internal/services/auth"
	"screenguard/internal/services/dispatch"
	"screenguard/internal/services/refresh"
	"screenguard/internal/services/review"
)

var (
	screeningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenguard_screenings_total",
		Help: "Screening submissions by dispatch outcome",
	}, []string{"outcome"})
	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screenguard_rate_limited_total",
		Help: "Requests rejected by the per-IP token bucket",
	})
)

const maxBulkItems = 500

// snapshotSource exposes the UK-scoped subset the Refresh Coordinator
// diffs against its previous run.
type snapshotSource interface {
	UKScopedSanctionsRows() ([]matching.WatchlistRow, bool)
}

// Server implements api.StrictServerInterface.
type Server struct {
	dispatch *dispatch.Service
	refresh  *refresh.Service
	review   *review.Service
	auth     *auth.Service
	jobs     ports.JobRepository
	evidence ports.EvidenceRepository
	snapshot snapshotSource
}

func New(dispatchSvc *dispatch.Service, refreshSvc *refresh.Service, reviewSvc *review.Service, authSvc *auth.Service, jobs ports.JobRepository, evidence ports.EvidenceRepository, snapshot snapshotSource) *Server {
	return &Server{dispatch: dispatchSvc, refresh: refreshSvc, review: reviewSvc, auth: authSvc, jobs: jobs, evidence: evidence, snapshot: snapshot}
}

// Routes mounts the public-facing generated handlers onto a fresh
// chi.Router. Callers are expected to further wrap protected sub-trees with
// BearerAuth as their config demands.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	api.RegisterHandlers(r, s)
	return r
}

// InternalRoutes mounts the internal-only operations (bulk enqueue, UK
// snapshot refresh trigger) onto a fresh chi.Router; callers must wrap it
// with RequireInternal before exposing it.
func (s *Server) InternalRoutes() chi.Router {
	r := chi.NewRouter()
	api.RegisterInternalHandlers(r, s)
	return r
}

// AuthenticatedRoutes mounts operations that require a verified bearer
// identity (currently just whoami); callers must wrap it with BearerAuth.
func (s *Server) AuthenticatedRoutes() chi.Router {
	r := chi.NewRouter()
	api.RegisterAuthenticatedHandlers(r, s)
	return r
}

func (s *Server) GetHealth(_ context.Context, _ api.GetHealthRequestObject) (api.GetHealthResponseObject, error) {
	return api.GetHealth200TextResponse("ok"), nil
}

func (s *Server) PostOpcheck(ctx context.Context, req api.PostOpcheckRequestObject) (api.PostOpcheckResponseObject, error) {
	if req.Body == nil {
		return errResponse(apperr.Invalid("body", "request body is required")), nil
	}
	outcome, err := s.dispatch.Screen(ctx, requestFromAPI(*req.Body))
	if err != nil {
		screeningsTotal.WithLabelValues("rejected").Inc()
		return errResponse(err), nil
	}
	screeningsTotal.WithLabelValues(string(outcome.Kind)).Inc()
	return opcheckResponse(outcome), nil
}

func (s *Server) PostOpcheckBulk(ctx context.Context, req api.PostOpcheckBulkRequestObject) (api.PostOpcheckBulkResponseObject, error) {
	if req.Body == nil {
		return errResponse(apperr.Invalid("body", "request body is required")), nil
	}
	if len(*req.Body) > maxBulkItems {
		return errResponse(apperr.Invalid("body", "bulk submissions are limited to 500 items")), nil
	}
	out := make([]api.BulkItemOutcome, len(*req.Body))
	for i, item := range *req.Body {
		outcome, err := s.dispatch.Screen(ctx, requestFromAPI(item))
		if err != nil {
			msg := err.Error()
			out[i] = api.BulkItemOutcome{Status: "error", Error: &msg}
			continue
		}
		out[i] = bulkOutcome(outcome)
	}
	return api.PostOpcheckBulk200JSONResponse(out), nil
}

func (s *Server) GetOpcheckJobsJobId(ctx context.Context, req api.GetOpcheckJobsJobIdRequestObject) (api.GetOpcheckJobsJobIdResponseObject, error) {
	job, evidence, err := s.jobs.Status(ctx, req.JobId)
	if err != nil {
		return errResponse(err), nil
	}
	if job == nil {
		return errResponse(apperr.New(apperr.NotFound, "job not found")), nil
	}
	resp := api.JobStatusResponse{Status: string(job.Status), JobID: job.ID}
	if job.ErrorMessage != nil {
		resp.ErrorMessage = job.ErrorMessage
	}
	if evidence != nil {
		ev := evidenceToAPI(*evidence)
		resp.Result = &ev
	}
	return api.GetOpcheckJobsJobId200JSONResponse(resp), nil
}

func (s *Server) PostRefreshOpensanctions(ctx context.Context, req api.PostRefreshOpensanctionsRequestObject) (api.PostRefreshOpensanctionsResponseObject, error) {
	ukRows, ok := s.snapshot.UKScopedSanctionsRows()
	if !ok {
		return errResponse(apperr.New(apperr.MatcherUnavailable, "watchlist snapshot not loaded")), nil
	}
	result, err := s.refresh.Run(ctx, ukRows)
	if err != nil {
		return errResponse(err), nil
	}
	resp := api.RefreshResponse{
		Status:         "ok",
		PostgresSynced: req.Body != nil && req.Body.SyncPostgres != nil && *req.Body.SyncPostgres,
		PostgresRows:   result.Run.UKRowCount,
		RefreshRun: api.RefreshRunView{
			RunID:     result.Run.RunID,
			UKHash:    result.Run.UKHash,
			UKChanged: result.UKChanged,
			Delta: api.RefreshDelta{
				Added:   result.Run.DeltaAdded,
				Removed: result.Run.DeltaRemoved,
				Changed: result.Run.DeltaChanged,
			},
			Rescreen: api.RefreshRescreen{
				Queued:         result.Run.QueuedCount,
				Reused:         result.Run.ReusedCount,
				AlreadyPending: result.Run.AlreadyPendingCount,
				Failed:         result.Run.FailedCount,
			},
		},
	}
	return api.PostRefreshOpensanctions200JSONResponse(resp), nil
}

func (s *Server) PostOpcheckReviewFingerprintClaim(ctx context.Context, req api.PostOpcheckReviewFingerprintClaimRequestObject) (api.PostOpcheckReviewFingerprintClaimResponseObject, error) {
	fp, err := fingerprint.ParseHex(req.Fingerprint)
	if err != nil {
		return errResponse(err), nil
	}
	if req.Body == nil {
		return errResponse(apperr.Invalid("actor", "actor is required")), nil
	}
	row, err := s.review.Claim(ctx, fp, req.Body.Actor)
	if err != nil {
		return errResponse(err), nil
	}
	return api.PostOpcheckReviewFingerprintClaim200JSONResponse(evidenceToAPI(row)), nil
}

func (s *Server) PostOpcheckReviewFingerprintComplete(ctx context.Context, req api.PostOpcheckReviewFingerprintCompleteRequestObject) (api.PostOpcheckReviewFingerprintCompleteResponseObject, error) {
	fp, err := fingerprint.ParseHex(req.Fingerprint)
	if err != nil {
		return errResponse(err), nil
	}
	if req.Body == nil {
		return errResponse(apperr.Invalid("outcome", "outcome and notes are required")), nil
	}
	row, err := s.review.Complete(ctx, fp, req.Body.Actor, domain.ReviewOutcome(req.Body.Outcome), req.Body.Notes)
	if err != nil {
		return errResponse(err), nil
	}
	return api.PostOpcheckReviewFingerprintComplete200JSONResponse(evidenceToAPI(row)), nil
}

func (s *Server) GetOpcheckSearch(ctx context.Context, req api.GetOpcheckSearchRequestObject) (api.GetOpcheckSearchResponseObject, error) {
	rows, err := s.evidence.SearchByName(ctx, req.Name, req.Limit)
	if err != nil {
		return errResponse(err), nil
	}
	out := make([]api.EvidenceResponse, len(rows))
	for i, row := range rows {
		out[i] = evidenceToAPI(row)
	}
	return api.GetOpcheckSearch200JSONResponse(out), nil
}

func (s *Server) PostOpcheckEntitiesFingerprintFalsePositive(ctx context.Context, req api.PostOpcheckEntitiesFingerprintFalsePositiveRequestObject) (api.PostOpcheckEntitiesFingerprintFalsePositiveResponseObject, error) {
	fp, err := fingerprint.ParseHex(req.Fingerprint)
	if err != nil {
		return errResponse(err), nil
	}
	if req.Body == nil {
		return errResponse(apperr.Invalid("reason", "reason and actor are required")), nil
	}
	row, err := s.evidence.MarkFalsePositive(ctx, fp, req.Body.Reason, req.Body.Actor)
	if err != nil {
		return errResponse(err), nil
	}
	return api.PostOpcheckEntitiesFingerprintFalsePositive200JSONResponse(evidenceToAPI(row)), nil
}

func (s *Server) PostAuthLogin(ctx context.Context, req api.PostAuthLoginRequestObject) (api.PostAuthLoginResponseObject, error) {
	if req.Body == nil {
		return errResponse(apperr.Invalid("username", "username and password are required")), nil
	}
	token, err := s.auth.Login(ctx, req.Body.Username, req.Body.Password)
	if err != nil {
		return errResponse(err), nil
	}
	return api.PostAuthLogin200JSONResponse{Token: token}, nil
}

func (s *Server) GetAuthMe(ctx context.Context, _ api.GetAuthMeRequestObject) (api.GetAuthMeResponseObject, error) {
	username, ok := UsernameFromContext(ctx)
	if !ok {
		return errResponse(apperr.New(apperr.Unauthorized, "missing bearer token")), nil
	}
	return api.GetAuthMe200JSONResponse{Username: username}, nil
}

func requestFromAPI(body api.SubmitScreeningRequest) dispatch.Request {
	req := dispatch.Request{
		Name:              body.Name,
		Requestor:         body.Requestor,
		Reason:            domain.ScreeningReason(body.ReasonForCheck),
		BusinessReference: body.BusinessReference,
		EntityType:        domain.EntityPerson,
	}
	if body.Dob != nil {
		req.DOB = *body.Dob
	}
	if body.EntityType != nil {
		req.EntityType = domain.EntityType(*body.EntityType)
	}
	if body.SearchBackend != nil {
		req.SearchBackend = *body.SearchBackend
	}
	return req
}

func opcheckResponse(outcome dispatch.Outcome) api.PostOpcheckResponseObject {
	switch outcome.Kind {
	case dispatch.OutcomeCached, dispatch.OutcomeSynchronous:
		return api.PostOpcheck200JSONResponse(evidenceToAPI(*outcome.Evidence))
	default:
		return api.PostOpcheck202JSONResponse{
			JobID:    outcome.JobID,
			Location: fmt.Sprintf("/opcheck/jobs/%s", outcome.JobID),
		}
	}
}

// bulkOutcome maps the Dispatcher's outcome onto the bulk response's
// four-valued status enum. A Synchronous outcome (result computed inline,
// below the sync threshold) has no corresponding enum value; it is reported
// as "queued" with no job_id, since the caller still needs GetOpcheckSearch
// or a direct submit to retrieve it.
func bulkOutcome(outcome dispatch.Outcome) api.BulkItemOutcome {
	switch outcome.Kind {
	case dispatch.OutcomeCached:
		return api.BulkItemOutcome{Status: "reused"}
	case dispatch.OutcomeAlreadyQueue:
		return api.BulkItemOutcome{Status: "already_pending", JobID: &outcome.JobID}
	case dispatch.OutcomeQueued:
		return api.BulkItemOutcome{Status: "queued", JobID: &outcome.JobID}
	default:
		return api.BulkItemOutcome{Status: "queued"}
	}
}

func evidenceToAPI(row domain.EvidenceRow) api.EvidenceResponse {
	dob := ""
	if row.DateOfBirth != nil {
		dob = *row.DateOfBirth
	}
	topMatches := make([]api.TopMatch, len(row.Result.TopMatches))
	for i, m := range row.Result.TopMatches {
		topMatches[i] = api.TopMatch{Name: m.Name, Score: m.Score}
	}
	key := row.Fingerprint.String()
	return api.EvidenceResponse{
		SanctionsName: row.Result.SanctionsName,
		BirthDate:     dob,
		Regime:        row.Result.Regime,
		Position:      row.Result.Position,
		Topics:        row.Result.Topics,
		IsPEP:         row.Result.IsPEP,
		IsSanctioned:  row.Result.IsSanctioned,
		Confidence:    string(row.Confidence),
		Score:         row.Score.String(),
		RiskLevel:     string(row.RiskLevel),
		TopMatches:    topMatches,
		MatchFound:    row.Result.MatchFound,
		CheckSummary: api.CheckSummary{
			Status: string(row.Status),
			Source: row.Result.CheckSource,
			Date:   row.Result.CheckDate,
		},
		EntityKey: &key,
	}
}

func errResponse(err error) api.ErrorJSONResponse {
	return api.ErrorJSONResponse{Status: statusForKind(apperr.Of(err)), Body: api.ErrorResponse{Error: err.Error(), Field: fieldOf(err)}}
}

func fieldOf(err error) *string {
	var ae *apperr.Error
	if as, ok := err.(*apperr.Error); ok {
		ae = as
	}
	if ae == nil || ae.Field == "" {
		return nil
	}
	return &ae.Field
}

func statusForKind(k apperr.Kind) int {
	switch k {
	case apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.RateLimited:
		return http.StatusTooManyRequests
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.StoreUnavailable, apperr.MatcherUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// contextKey avoids collisions with other packages' context keys.
type contextKey int

const usernameKey contextKey = iota

// BearerAuth validates the Authorization header on every request passing
// through it, rejecting with 401 on failure and otherwise stashing the
// verified username in the request context for GetAuthMe and audit logging.
func BearerAuth(authSvc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			claims, err := authSvc.VerifyToken(header[len(prefix):])
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), usernameKey, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UsernameFromContext returns the bearer-authenticated username, if any.
func UsernameFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(usernameKey).(string)
	return v, ok
}

// RateLimit enforces the Rate Governor's per-key token bucket, deriving the
// client IP the same way regardless of reverse proxies: callers pre-resolve
// the trusted-proxy-aware IP via keyFunc.
func RateLimit(limiter ports.RateLimiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter, err := limiter.Allow(r.Context(), keyFunc(r))
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			if !allowed {
				rateLimitedTotal.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter/time.Second)+1))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireInternal gates the internal-facing operations (bulk enqueue and
// the refresh trigger) behind either a shared API key or an IP allowlist; with neither
// configured the route stays disabled rather than silently open.
func RequireInternal(apiKey string, allowlist map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" && len(allowlist) == 0 {
				writeError(w, http.StatusServiceUnavailable, "internal API is not configured")
				return
			}
			if apiKey != "" && r.Header.Get("X-Internal-Api-Key") == apiKey {
				next.ServeHTTP(w, r)
				return
			}
			if len(allowlist) > 0 && allowlist[clientIP(r)] {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusForbidden, "internal API access denied")
		})
	}
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := lastColon(host); i >= 0 {
		host = host[:i]
	}
	return host
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: msg})
}
