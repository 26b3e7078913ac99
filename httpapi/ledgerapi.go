package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"social-ledger/ledger"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// IdentityHeader carries the caller-attested identity of every mutating call.
const IdentityHeader = "X-Identity"

var identityPattern = regexp.MustCompile(`^[A-Za-z0-9_.:@-]{1,64}$`)

type HTTPHandler struct {
	ledger *ledger.Ledger
	log    *zap.Logger
}

func NewServer(addr string, l *ledger.Ledger, log *zap.Logger) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      NewRouter(l, log),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
}

func NewRouter(l *ledger.Ledger, log *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	handler := HTTPHandler{ledger: l, log: log}

	r.HandleFunc("/api/v1/profiles", handler.CreateProfile).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/profiles/{owner}", handler.GetProfile).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/profiles/{owner}/posts", handler.GetPosts).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/profiles/{owner}/followers", handler.Follow).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/posts", handler.CreatePost).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/posts/{postKey}", handler.GetPost).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/posts/{postKey}/likes", handler.LikePost).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/feed", handler.Feed).Methods(http.MethodGet)
	r.HandleFunc("/maintenance/ping", handler.CheckIsReady).Methods(http.MethodGet)
	r.Use(handler.logRequests)
	return r
}

type CreateProfileRequest struct {
	Handle string `json:"handle"`
	Name   string `json:"name"`
}

type CreatePostRequest struct {
	Content string `json:"content"`
}

type ProfileResponse struct {
	Owner          string `json:"owner"`
	Handle         string `json:"handle"`
	Name           string `json:"name"`
	PostCount      uint64 `json:"postCount"`
	FollowerCount  uint64 `json:"followerCount"`
	FollowingCount uint64 `json:"followingCount"`
}

type PostResponse struct {
	PostKey      string `json:"key"`
	Author       string `json:"author"`
	Content      string `json:"content"`
	CreatedAt    string `json:"createdAt"`
	LikeCount    uint64 `json:"likeCount"`
	CommentCount uint64 `json:"commentCount"`
}

type GetPostsResponse struct {
	Posts    []PostResponse `json:"posts"`
	NextPage string         `json:"nextPage,omitempty"`
}

type EventResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Actor     string `json:"actor"`
	Subject   string `json:"subject,omitempty"`
	PostKey   string `json:"postKey,omitempty"`
	Timestamp string `json:"timestamp"`
}

type EventsResponse struct {
	Events []EventResponse `json:"events"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func toProfileResponse(p ledger.Profile) ProfileResponse {
	return ProfileResponse{string(p.Owner), p.Handle, p.Name, p.PostCount, p.FollowerCount, p.FollowingCount}
}

func toPostResponse(p ledger.Post) PostResponse {
	return PostResponse{p.Key.String(), string(p.Author), p.Content, p.CreatedAt.Format(time.RFC3339), p.LikeCount, p.CommentCount}
}

func toPostsResponse(posts []ledger.Post) []PostResponse {
	resp := make([]PostResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toPostResponse(p))
	}
	return resp
}

func toEventsResponse(events []ledger.Event) EventsResponse {
	resp := EventsResponse{Events: make([]EventResponse, 0, len(events))}
	for _, ev := range events {
		resp.Events = append(resp.Events, EventResponse{
			ID:        ev.ID,
			Type:      string(ev.Type),
			Actor:     string(ev.Actor),
			Subject:   string(ev.Subject),
			PostKey:   ev.PostKey.String(),
			Timestamp: ev.Timestamp.Format(time.RFC3339),
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	rawResponse, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(rawResponse)
}

func statusFor(kind error) int {
	switch kind {
	case ledger.ErrAlreadyExists:
		return http.StatusConflict
	case ledger.ErrNotFound:
		return http.StatusNotFound
	case ledger.ErrUnauthorized:
		return http.StatusForbidden
	case ledger.ErrContentTooLong, ledger.ErrInvalidIdentity:
		return http.StatusBadRequest
	case ledger.ErrConflict:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	kind := ledger.KindOf(err)
	if kind == nil {
		kind = ledger.ErrStorage
	}
	resp := ErrorResponse{Error: kind.Error(), Message: err.Error()}
	var le *ledger.Error
	if errors.As(err, &le) {
		resp.Field = le.Field
	}
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
		resp.Message = "internal error"
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "bad_request", Field: field, Message: msg})
}

// caller extracts the attested identity or answers 401.
func caller(w http.ResponseWriter, r *http.Request) (ledger.Identity, bool) {
	id := r.Header.Get(IdentityHeader)
	if !identityPattern.MatchString(id) {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthenticated",
			Field:   IdentityHeader,
			Message: "The identity header is missing or not valid",
		})
		return "", false
	}
	return ledger.Identity(id), true
}

func (h *HTTPHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var body CreateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "body", err.Error())
		return
	}
	profile, _, err := h.ledger.CreateProfile(r.Context(), owner, body.Handle, body.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfileResponse(profile))
}

func (h *HTTPHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	owner := ledger.Identity(mux.Vars(r)["owner"])
	profile, err := h.ledger.GetProfile(r.Context(), owner)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (h *HTTPHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	author, ok := caller(w, r)
	if !ok {
		return
	}
	var body CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, "body", err.Error())
		return
	}
	post, _, err := h.ledger.CreatePost(r.Context(), author, body.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPostResponse(post))
}

func (h *HTTPHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	key, err := ledger.ParseKey(mux.Vars(r)["postKey"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	post, err := h.ledger.GetPost(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

func (h *HTTPHandler) LikePost(w http.ResponseWriter, r *http.Request) {
	liker, ok := caller(w, r)
	if !ok {
		return
	}
	key, err := ledger.ParseKey(mux.Vars(r)["postKey"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	post, _, err := h.ledger.LikePost(r.Context(), key, liker)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

func (h *HTTPHandler) Follow(w http.ResponseWriter, r *http.Request) {
	follower, ok := caller(w, r)
	if !ok {
		return
	}
	followee := ledger.Identity(mux.Vars(r)["owner"])
	events, err := h.ledger.FollowUser(r.Context(), follower, followee)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventsResponse(events))
}

func (h *HTTPHandler) GetPosts(w http.ResponseWriter, r *http.Request) {
	owner := ledger.Identity(mux.Vars(r)["owner"])
	page := r.URL.Query().Get("page")
	var pageSize uint64
	if raw := r.URL.Query().Get("size"); raw != "" {
		var err error
		if pageSize, err = strconv.ParseUint(raw, 10, 8); err != nil {
			badRequest(w, "size", "size must be between 0 and 255")
			return
		}
	}

	// Let the ledger walk the author's posts for the requested page
	posts, nextPage, err := h.ledger.ListPosts(r.Context(), owner, page, uint8(pageSize))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GetPostsResponse{Posts: toPostsResponse(posts), NextPage: nextPage})
}

func (h *HTTPHandler) Feed(w http.ResponseWriter, r *http.Request) {
	var authors []ledger.Identity
	for _, a := range r.URL.Query()["author"] {
		authors = append(authors, ledger.Identity(a))
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			badRequest(w, "limit", "limit must be a non-negative integer")
			return
		}
	}
	posts, err := h.ledger.Feed(r.Context(), authors, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GetPostsResponse{Posts: toPostsResponse(posts)})
}

func (h *HTTPHandler) CheckIsReady(w http.ResponseWriter, r *http.Request) {
	if !h.ledger.IsReady(r.Context()) {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (h *HTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
