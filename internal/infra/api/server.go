// Package api exposes the conversion service over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"snipr-audio/internal/domain"
	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/adapter"
	"snipr-audio/internal/infra/rss"
	"snipr-audio/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Deps struct {
	Jobs     usecase.JobUseCase
	Feeds    usecase.FeedUseCase
	Podcasts adapter.PodcastDirectory
	Verifier adapter.CredentialVerifier
	// Health reports readiness of backing services. Nil means always healthy.
	Health func(ctx context.Context) error
	// MediaDir is served under /media/ when audio is kept on local disk.
	MediaDir       string
	RequestTimeout time.Duration
}

type Server struct {
	Deps
	log *zerolog.Logger
}

func NewServer(d Deps, logger *zerolog.Logger) *Server {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	l := logger.With().Str("component", "api").Logger()
	return &Server{Deps: d, log: &l}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.RequestTimeout))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/rss/{ownerID}/{feedID}", s.handle(s.readFeed))
	if s.MediaDir != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(s.MediaDir))))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/podcasts", s.handle(s.listPodcasts))

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(s.Verifier, s.log))

			r.Post("/jobs", s.handle(s.submitJob))
			r.Post("/documents", s.handle(s.submitDocument))
			r.Get("/jobs", s.handle(s.listJobs))
			r.Get("/jobs/{jobID}", s.handle(s.getJob))

			r.Get("/feed", s.handle(s.feedInfo))
			r.Post("/feed/rotate", s.handle(s.rotateFeed))
			r.Post("/episodes", s.handle(s.appendEpisode))
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.Health != nil {
		if err := s.Health(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("health check failed")
			http.Error(w, "UNAVAILABLE", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// submitRequest accepts the source either inline or nested under sourceRef.
// ownerId is optional and must match the caller when present.
type submitRequest struct {
	OwnerID string           `json:"ownerId,omitempty"`
	Nested  *model.SourceRef `json:"sourceRef,omitempty"`
	model.SourceRef
}

type submitResponse struct {
	JobID  string          `json:"jobId"`
	Status model.JobStatus `json:"status"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) error {
	p := mustPrincipal(r)
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.OwnerID != "" && req.OwnerID != p.ID {
		return domain.ErrForbidden
	}
	src := req.SourceRef
	if req.Nested != nil {
		src = *req.Nested
	}
	job, err := s.Jobs.Submit(r.Context(), p, src)
	if err != nil {
		return err
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: job.ID, Status: job.Status})
	return nil
}

// maxDocumentBytes caps an uploaded book, multipart framing included.
const maxDocumentBytes = 32 << 20

// submitDocument takes a multipart upload with the book under "epub" and an
// optional ownerId field that must match the caller.
func (s *Server) submitDocument(w http.ResponseWriter, r *http.Request) error {
	p := mustPrincipal(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)
	if err := r.ParseMultipartForm(maxDocumentBytes); err != nil {
		return domain.Validationf("invalid multipart upload")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	if owner := r.FormValue("ownerId"); owner != "" && owner != p.ID {
		return domain.ErrForbidden
	}
	file, hdr, err := r.FormFile("epub")
	if err != nil {
		return domain.Validationf("epub file is required")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return domain.Validationf("invalid multipart upload")
	}
	job, err := s.Jobs.SubmitDocument(r.Context(), p, hdr.Filename, data)
	if err != nil {
		return err
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: job.ID, Status: job.Status})
	return nil
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) error {
	jobs, err := s.Jobs.List(r.Context(), mustPrincipal(r))
	if err != nil {
		return err
	}
	if jobs == nil {
		jobs = []*model.ConversionJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
	return nil
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) error {
	job, err := s.Jobs.Get(r.Context(), mustPrincipal(r), chi.URLParam(r, "jobID"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, job)
	return nil
}

func (s *Server) feedInfo(w http.ResponseWriter, r *http.Request) error {
	info, err := s.Feeds.Info(r.Context(), mustPrincipal(r))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, info)
	return nil
}

func (s *Server) rotateFeed(w http.ResponseWriter, r *http.Request) error {
	info, err := s.Feeds.Rotate(r.Context(), mustPrincipal(r))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, info)
	return nil
}

func (s *Server) appendEpisode(w http.ResponseWriter, r *http.Request) error {
	var entry model.FeedEntry
	if err := decodeJSON(w, r, &entry); err != nil {
		return err
	}
	saved, err := s.Feeds.AppendEntry(r.Context(), mustPrincipal(r), &entry)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, saved)
	return nil
}

func (s *Server) listPodcasts(w http.ResponseWriter, r *http.Request) error {
	out := []adapter.Podcast{}
	if s.Podcasts != nil {
		list, err := s.Podcasts.List(r.Context())
		if err != nil {
			return err
		}
		out = append(out, list...)
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) readFeed(w http.ResponseWriter, r *http.Request) error {
	ownerID := strings.TrimSpace(chi.URLParam(r, "ownerID"))
	feedID := strings.TrimSpace(chi.URLParam(r, "feedID"))
	if ownerID == "" || feedID == "" {
		return domain.ErrNotFound
	}
	doc, err := s.Feeds.ReadFeed(r.Context(), ownerID, feedID)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", rss.ContentType)
	w.Header().Set("Cache-Control", rss.CacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
	return nil
}

// mustPrincipal is only called behind Authenticate.
func mustPrincipal(r *http.Request) adapter.Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}
