package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// Response objects implement this to write themselves onto the wire; this
// mirrors the shape oapi-codegen's strict-server generator emits per
// operation (one concrete type per status code).
type responseObject interface {
	VisitResponse(w http.ResponseWriter) error
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(body)
}

// --- GET /health ---

type GetHealthRequestObject struct{}
type GetHealthResponseObject interface{ responseObject }
type GetHealth200TextResponse string

func (r GetHealth200TextResponse) VisitResponse(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err := w.Write([]byte(r))
	return err
}

// --- POST /opcheck ---

type PostOpcheckRequestObject struct {
	Body *SubmitScreeningRequest
}
type PostOpcheckResponseObject interface{ responseObject }

type PostOpcheck200JSONResponse EvidenceResponse

func (r PostOpcheck200JSONResponse) VisitResponse(w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, EvidenceResponse(r))
}

type PostOpcheck202JSONResponse QueuedResponse

func (r PostOpcheck202JSONResponse) VisitResponse(w http.ResponseWriter) error {
	w.Header().Set("Location", r.Location)
	return writeJSON(w, http.StatusAccepted, QueuedResponse(r))
}

type ErrorJSONResponse struct {
	Status int
	Body   ErrorResponse
}

func (r ErrorJSONResponse) VisitResponse(w http.ResponseWriter) error {
	return writeJSON(w, r.Status, r.Body)
}

// --- GET /opcheck/jobs/{job_id} ---

type GetOpcheckJobsJobIdRequestObject struct {
	JobId string
}
type GetOpcheckJobsJobIdResponseObject interface{ responseObject }
type GetOpcheckJobsJobId200JSONResponse JobStatusResponse

func (r GetOpcheckJobsJobId200JSONResponse) VisitResponse(w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, JobStatusResponse(r))
}

// --- POST /opcheck/bulk ---

type PostOpcheckBulkRequestObject struct {
	Body *[]SubmitScreeningRequest
}
type PostOpcheckBulkResponseObject interface{ responseObject }
type PostOpcheckBulk200JSONResponse []BulkItemOutcome

func (r PostOpcheckBulk200JSONResponse) VisitResponse(w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, []BulkItemOutcome(r))
}

// --- POST /refresh_opensanctions ---

type PostRefreshOpensanctionsRequestObject struct {
	Body *RefreshRequest
}
type PostRefreshOpensanctionsResponseObject interface{ responseObject }
type PostRefreshOpensanctions200JSONResponse RefreshResponse

func (r PostRefreshOpensanctions200JSONResponse) VisitResponse(w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, RefreshResponse(r))
}

// --- POST /opcheck/review/{fingerprint}/claim ---

type PostOpcheckReviewFingerprintClaimRequestObject struct {
	Fingerprint string
	Body        *ReviewClaimRequest
}
type PostOpcheckReviewFingerprintClaimResponseObject interface{ responseObject }
type PostOpcheckReviewFingerprintClaim200JSONResponse EvidenceResponse

func (r PostOpcheckReviewFingerprintClaim200JSONResponse) VisitResponse(w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, EvidenceResponse(r))
}

// --- POST /opcheck/review/{fingerprint}/complete ---

type PostOpcheckReviewFingerprintCompleteRequestObject struct {
	Fingerprint string
	Body        *ReviewCompleteRequest
}
type PostOpcheckReviewFingerprintCompleteResponseObject interface{ responseObject }
type PostOpcheckReviewFingerprintComplete200JSONResponse EvidenceResponse

func (r PostOpcheckReviewFingerprintComplete200JSONResponse) VisitResponse(w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, EvidenceResponse(r))
}

// --- GET /opcheck/search ---

type GetOpcheckSearchRequestObject struct {
	Name  string
	Limit int
}
type GetOpcheckSearchResponseObject interface{ responseObject }
type GetOpcheckSearch200JSONResponse []EvidenceResponse

func (r GetOpcheckSearch200JSONResponse) VisitResponse(w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, []EvidenceResponse(r))
}

// --- POST /opcheck/entities/{fingerprint}/false-positive ---

type PostOpcheckEntitiesFingerprintFalsePositiveRequestObject struct {
	Fingerprint string
	Body        *FalsePositiveRequest
}
type PostOpcheckEntitiesFingerprintFalsePositiveResponseObject interface{ responseObject }
type PostOpcheckEntitiesFingerprintFalsePositive200JSONResponse EvidenceResponse

func (r PostOpcheckEntitiesFingerprintFalsePositive200JSONResponse) VisitResponse(w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, EvidenceResponse(r))
}

// --- POST /auth/login ---

type PostAuthLoginRequestObject struct {
	Body *LoginRequest
}
type PostAuthLoginResponseObject interface{ responseObject }
type PostAuthLogin200JSONResponse LoginResponse

func (r PostAuthLogin200JSONResponse) VisitResponse(w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, LoginResponse(r))
}

// --- GET /auth/me ---

type GetAuthMeRequestObject struct{}
type GetAuthMeResponseObject interface{ responseObject }
type GetAuthMe200JSONResponse WhoAmIResponse

func (r GetAuthMe200JSONResponse) VisitResponse(w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, WhoAmIResponse(r))
}

// StrictServerInterface is the domain-facing surface a handler implements;
// each method receives a decoded RequestObject and returns one of its
// operation's concrete ResponseObject types (or an ErrorJSONResponse).
type StrictServerInterface interface {
	GetHealth(ctx context.Context, req GetHealthRequestObject) (GetHealthResponseObject, error)
	PostOpcheck(ctx context.Context, req PostOpcheckRequestObject) (PostOpcheckResponseObject, error)
	GetOpcheckJobsJobId(ctx context.Context, req GetOpcheckJobsJobIdRequestObject) (GetOpcheckJobsJobIdResponseObject, error)
	PostOpcheckBulk(ctx context.Context, req PostOpcheckBulkRequestObject) (PostOpcheckBulkResponseObject, error)
	PostRefreshOpensanctions(ctx context.Context, req PostRefreshOpensanctionsRequestObject) (PostRefreshOpensanctionsResponseObject, error)
	PostOpcheckReviewFingerprintClaim(ctx context.Context, req PostOpcheckReviewFingerprintClaimRequestObject) (PostOpcheckReviewFingerprintClaimResponseObject, error)
	PostOpcheckReviewFingerprintComplete(ctx context.Context, req PostOpcheckReviewFingerprintCompleteRequestObject) (PostOpcheckReviewFingerprintCompleteResponseObject, error)
	GetOpcheckSearch(ctx context.Context, req GetOpcheckSearchRequestObject) (GetOpcheckSearchResponseObject, error)
	PostOpcheckEntitiesFingerprintFalsePositive(ctx context.Context, req PostOpcheckEntitiesFingerprintFalsePositiveRequestObject) (PostOpcheckEntitiesFingerprintFalsePositiveResponseObject, error)
	PostAuthLogin(ctx context.Context, req PostAuthLoginRequestObject) (PostAuthLoginResponseObject, error)
	GetAuthMe(ctx context.Context, req GetAuthMeRequestObject) (GetAuthMeResponseObject, error)
}

// RegisterHandlers mounts the public operations of si onto r (the
// bearer-gated and internal operations are mounted by
// RegisterAuthenticatedHandlers and RegisterInternalHandlers), decoding
// request bodies/params and writing back whatever ResponseObject the handler
// returns. Any error a handler returns is written as a 500 ErrorResponse;
// callers outside this file (internal/adapters/http) are expected to return
// ErrorJSONResponse rather than a bare error for anything client-visible.
func RegisterHandlers(r chi.Router, si StrictServerInterface) {
	r.Get("/health", handle(func(ctx context.Context, _ *http.Request) (responseObject, error) {
		return si.GetHealth(ctx, GetHealthRequestObject{})
	}))

	r.Post("/opcheck", handle(func(ctx context.Context, req *http.Request) (responseObject, error) {
		var body SubmitScreeningRequest
		if err := decodeJSON(req, &body); err != nil {
			return ErrorJSONResponse{Status: http.StatusBadRequest, Body: ErrorResponse{Error: err.Error()}}, nil
		}
		return si.PostOpcheck(ctx, PostOpcheckRequestObject{Body: &body})
	}))

	r.Get("/opcheck/jobs/{job_id}", handle(func(ctx context.Context, req *http.Request) (responseObject, error) {
		return si.GetOpcheckJobsJobId(ctx, GetOpcheckJobsJobIdRequestObject{JobId: chi.URLParam(req, "job_id")})
	}))

	r.Get("/opcheck/search", handle(func(ctx context.Context, req *http.Request) (responseObject, error) {
		limit := 50
		if err := runtime.BindQueryParameter("form", true, false, "limit", req.URL.Query(), &limit); err != nil {
			return ErrorJSONResponse{Status: http.StatusBadRequest, Body: ErrorResponse{Error: "limit: " + err.Error()}}, nil
		}
		return si.GetOpcheckSearch(ctx, GetOpcheckSearchRequestObject{Name: req.URL.Query().Get("name"), Limit: limit})
	}))

	r.Post("/opcheck/review/{fingerprint}/claim", handle(func(ctx context.Context, req *http.Request) (responseObject, error) {
		var body ReviewClaimRequest
		if err := decodeJSON(req, &body); err != nil {
			return ErrorJSONResponse{Status: http.StatusBadRequest, Body: ErrorResponse{Error: err.Error()}}, nil
		}
		return si.PostOpcheckReviewFingerprintClaim(ctx, PostOpcheckReviewFingerprintClaimRequestObject{
			Fingerprint: chi.URLParam(req, "fingerprint"), Body: &body,
		})
	}))

	r.Post("/opcheck/review/{fingerprint}/complete", handle(func(ctx context.Context, req *http.Request) (responseObject, error) {
		var body ReviewCompleteRequest
		if err := decodeJSON(req, &body); err != nil {
			return ErrorJSONResponse{Status: http.StatusBadRequest, Body: ErrorResponse{Error: err.Error()}}, nil
		}
		return si.PostOpcheckReviewFingerprintComplete(ctx, PostOpcheckReviewFingerprintCompleteRequestObject{
			Fingerprint: chi.URLParam(req, "fingerprint"), Body: &body,
		})
	}))

	r.Post("/opcheck/entities/{fingerprint}/false-positive", handle(func(ctx context.Context, req *http.Request) (responseObject, error) {
		var body FalsePositiveRequest
		if err := decodeJSON(req, &body); err != nil {
			return ErrorJSONResponse{Status: http.StatusBadRequest, Body: ErrorResponse{Error: err.Error()}}, nil
		}
		return si.PostOpcheckEntitiesFingerprintFalsePositive(ctx, PostOpcheckEntitiesFingerprintFalsePositiveRequestObject{
			Fingerprint: chi.URLParam(req, "fingerprint"), Body: &body,
		})
	}))

	r.Post("/auth/login", handle(func(ctx context.Context, req *http.Request) (responseObject, error) {
		var body LoginRequest
		if err := decodeJSON(req, &body); err != nil {
			return ErrorJSONResponse{Status: http.StatusBadRequest, Body: ErrorResponse{Error: err.Error()}}, nil
		}
		return si.PostAuthLogin(ctx, PostAuthLoginRequestObject{Body: &body})
	}))

}

// RegisterAuthenticatedHandlers mounts operations that require a verified
// bearer identity in context; callers must wrap r with their bearer-auth
// middleware before calling this.
func RegisterAuthenticatedHandlers(r chi.Router, si StrictServerInterface) {
	r.Get("/auth/me", handle(func(ctx context.Context, req *http.Request) (responseObject, error) {
		return si.GetAuthMe(req.Context(), GetAuthMeRequestObject{})
	}))
}

// RegisterInternalHandlers mounts the two internal-only operations (bulk
// enqueue, UK snapshot refresh trigger) separately from RegisterHandlers so
// callers can gate them behind the internal-API allowlist/key without
// double-registering routes on the same router.
func RegisterInternalHandlers(r chi.Router, si StrictServerInterface) {
	r.Post("/opcheck/bulk", handle(func(ctx context.Context, req *http.Request) (responseObject, error) {
		var body []SubmitScreeningRequest
		if err := decodeJSON(req, &body); err != nil {
			return ErrorJSONResponse{Status: http.StatusBadRequest, Body: ErrorResponse{Error: err.Error()}}, nil
		}
		return si.PostOpcheckBulk(ctx, PostOpcheckBulkRequestObject{Body: &body})
	}))

	r.Post("/refresh_opensanctions", handle(func(ctx context.Context, req *http.Request) (responseObject, error) {
		var body RefreshRequest
		_ = decodeJSON(req, &body) // body is optional; zero value means defaults
		return si.PostRefreshOpensanctions(ctx, PostRefreshOpensanctionsRequestObject{Body: &body})
	}))
}

func handle(fn func(ctx context.Context, r *http.Request) (responseObject, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := fn(r.Context(), r)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		if resp == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if werr := resp.VisitResponse(w); werr != nil {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: werr.Error()})
		}
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
