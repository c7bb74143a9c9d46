package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"document-agent/internal/helper"
	"document-agent/internal/models"
	"document-agent/internal/rag"
)

type askRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

type askResponse struct {
	Answer  string       `json:"answer"`
	Context []string     `json:"context"`
	Hits    []models.Hit `json:"hits"`
}

type statusResponse struct {
	Status         string `json:"status"`
	DocumentLoaded bool   `json:"document_loaded"`
	Indexed        bool   `json:"indexed"`
	Chunks         int    `json:"chunks"`
	Source         string `json:"source,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: "running"}
	if p, source := s.Current(); p != nil {
		st := p.Status()
		resp.DocumentLoaded = st.Chunks > 0
		resp.Indexed = st.Indexed
		resp.Chunks = st.Chunks
		resp.Source = source
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, _ := s.Current()
	if p == nil || !p.Status().Indexed {
		s.respondError(w, http.StatusBadRequest, "No document loaded")
		return
	}

	log.Debug().Str("question", req.Question).Int("top_k", req.TopK).Msg("Ask request")
	answer, err := p.AnswerQuestion(r.Context(), req.Question, req.TopK)
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion):
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	case errors.Is(err, rag.ErrNoIndex):
		s.respondError(w, http.StatusBadRequest, "No document loaded")
		return
	case err != nil:
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, askResponse{Answer: answer.Text, Context: answer.Context, Hits: answer.Hits})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxUploadMB > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadMB<<20)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !s.config.AllowsExtension(ext) {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type %q, allowed: %s", ext, strings.Join(s.config.AllowedExtensions, ", ")))
		return
	}

	dir, err := os.MkdirTemp(s.config.UploadDir, "upload-")
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Failed to remove upload")
		}
	}()

	id, err := helper.GenerateUUID()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	path := filepath.Join(dir, id+ext)
	if err := saveUpload(path, file); err != nil {
		log.Error().Err(err).Str("filename", header.Filename).Msg("Failed to save upload")
		s.respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	log.Info().Str("filename", header.Filename).Int64("bytes", header.Size).Msg("Processing upload")
	chunks, err := s.Load(r.Context(), path, filepath.Base(header.Filename))
	if err != nil {
		log.Error().Err(err).Str("filename", header.Filename).Msg("Failed to process upload")
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing document: %v", err))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Document processed successfully",
		"chunks":  chunks,
	})
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
