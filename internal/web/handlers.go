package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/JonMunkholm/docstream/internal/logging"
	"github.com/JonMunkholm/docstream/internal/stream"
)

// MaxPreviewLimit caps the number of records a preview returns.
const MaxPreviewLimit = 1000

// contextCheckInterval is how often (in records) a preview checks for
// cancellation while counting.
const contextCheckInterval = 100

// PreviewResponse is returned by POST /api/preview. Total counts every record
// in the file; Records holds at most the requested limit.
type PreviewResponse struct {
	Name             string          `json:"name"`
	Format           string          `json:"format"`
	Encoding         string          `json:"encoding"`
	Total            int             `json:"total"`
	Records          []stream.Record `json:"records"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
}

// handlePreview decodes an uploaded file and returns a sample of its records.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if err := s.limiter.Acquire(r.Context()); err != nil {
		if errors.Is(err, ErrTooManyPreviews) {
			s.metrics.IncPreviewsRejected()
		}
		respondError(w, r, err, statusFor(err))
		return
	}
	defer s.limiter.Release()

	s.metrics.PreviewStarted()
	defer s.metrics.PreviewFinished()

	maxSize := s.cfg.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		if !IsUserFacing(err) {
			err = fmt.Errorf("%w: %v", errInvalidForm, err)
		}
		respondError(w, r, err, statusFor(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	limit, err := s.previewLimit(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		err = fmt.Errorf("%w: %v", errNoFile, err)
		respondError(w, r, err, statusFor(err))
		return
	}
	defer file.Close()

	resp, err := s.preview(r.Context(), filepath.Base(header.Filename), file, limit)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	logging.FromContext(r.Context()).Info("preview completed",
		"file", resp.Name,
		"format", resp.Format,
		"encoding", resp.Encoding,
		"records", resp.Total,
		"duration_ms", resp.ProcessingTimeMs,
	)
	writeJSON(w, r, resp)
}

// previewLimit reads the optional "limit" form value.
func (s *Server) previewLimit(r *http.Request) (int, error) {
	raw := r.FormValue("limit")
	if raw == "" {
		return min(s.cfg.SampleSize, MaxPreviewLimit), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer, got %q", errInvalidForm, raw)
	}
	return min(n, MaxPreviewLimit), nil
}

// preview sniffs and decodes file, keeping the first limit records and
// counting the rest.
func (s *Server) preview(ctx context.Context, name string, file io.ReadSeeker, limit int) (PreviewResponse, error) {
	start := time.Now()
	resp := PreviewResponse{Name: name, Records: make([]stream.Record, 0, limit)}

	opts := append(append([]stream.Option(nil), s.decodeOpts...),
		stream.WithResolveHook(func(enc stream.Encoding) { resp.Encoding = enc.Name() }))

	desc, err := stream.Sniff(name, file, opts...)
	if err != nil {
		s.metrics.ObserveDecode(stream.FormatUnknown.String(), "", 0, time.Since(start), err)
		return resp, err
	}
	resp.Format = desc.Format.String()

	err = func() error {
		for rec, err := range stream.Decode(file, desc, opts...) {
			if err != nil {
				return err
			}
			resp.Total++
			if len(resp.Records) < limit {
				resp.Records = append(resp.Records, rec)
			}
			if resp.Total%contextCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		}
		return nil
	}()
	if desc.Format != stream.FormatCSV {
		resp.Encoding = "utf-8"
	}

	elapsed := time.Since(start)
	resp.ProcessingTimeMs = elapsed.Milliseconds()
	s.metrics.ObserveDecode(resp.Format, resp.Encoding, resp.Total, elapsed, err)
	return resp, err
}

// handleEncodings lists the CSV candidate encodings in the order tried.
func (s *Server) handleEncodings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string][]string{"encodings": s.encodings})
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status   string        `json:"status"`
	Previews LimiterStatus `json:"previews"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, HealthResponse{Status: "ok", Previews: s.limiter.Status()})
}

// clientIP strips the port from r.RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
