package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/MrWong99/docent/pkg/backend"
)

// Backend is the subset of [backend.Client] the workflows use.
type Backend interface {
	Chat(ctx context.Context, question string) (string, error)
	ClearChat(ctx context.Context) error
	UploadPDF(ctx context.Context, f backend.File) (json.RawMessage, error)
	ProcessPDF(ctx context.Context) (json.RawMessage, error)
	ClearPDF(ctx context.Context) error
	UploadJD(ctx context.Context, f backend.File) (*backend.JDUpload, error)
	UploadCVs(ctx context.Context, files []backend.File) (*backend.CVUpload, error)
	CompareCVs(ctx context.Context) (*backend.Comparison, error)
	ClearMatching(ctx context.Context) error
}

// Service runs the chat and document workflows. Each operation is one
// request/response cycle against the backend; its outcome is reported
// through the [Log] or a [Banner] and also returned to the caller.
type Service struct {
	backend Backend
	log     *Log
	banners *Notifier

	mu      sync.Mutex
	matches []backend.Match
	subs    []func([]backend.Match)
}

// NewService creates a Service reporting into log and banners.
func NewService(b Backend, log *Log, banners *Notifier) *Service {
	return &Service{backend: b, log: log, banners: banners}
}

// OnMatches registers fn to receive every newly published match list. An
// empty list means the matches were cleared.
func (s *Service) OnMatches(fn func([]backend.Match)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Matches returns the last published ranking.
func (s *Service) Matches() []backend.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.matches)
}

// SendMessage appends q as a user entry, asks the backend and appends a
// non-empty answer as an assistant entry. On failure one error entry is
// appended instead.
func (s *Service) SendMessage(ctx context.Context, q string) error {
	if q == "" {
		return nil
	}
	s.log.Append(RoleUser, q)
	answer, err := s.backend.Chat(ctx, q)
	if err != nil {
		s.log.Append(RoleError, "Error: "+describe(err))
		return fmt.Errorf("chat: send message: %w", err)
	}
	if answer != "" {
		s.log.Append(RoleAssistant, answer)
	}
	return nil
}

// ClearChat clears the server history and, on success, the local log. On
// failure the log is kept and one error entry is appended.
func (s *Service) ClearChat(ctx context.Context) error {
	if err := s.backend.ClearChat(ctx); err != nil {
		s.log.Append(RoleError, "Error clearing chat: "+describe(err))
		return fmt.Errorf("chat: clear chat: %w", err)
	}
	s.log.Clear()
	s.banners.Success("Chat history cleared successfully!")
	return nil
}

// UploadPDF uploads the PDF at path.
func (s *Service) UploadPDF(ctx context.Context, path string) error {
	err := withFiles([]string{path}, func(files []backend.File) error {
		_, err := s.backend.UploadPDF(ctx, files[0])
		return err
	})
	if err != nil {
		return s.fail("Error uploading PDF", fmt.Errorf("chat: upload pdf: %w", err))
	}
	s.banners.Success(fmt.Sprintf("%s uploaded successfully!", filepath.Base(path)))
	return nil
}

// ProcessPDF returns the information the server extracted from the uploaded
// PDF.
func (s *Service) ProcessPDF(ctx context.Context) (json.RawMessage, error) {
	info, err := s.backend.ProcessPDF(ctx)
	if err != nil {
		return nil, s.fail("Error processing PDF", fmt.Errorf("chat: process pdf: %w", err))
	}
	s.banners.Success("PDF processed successfully!")
	return info, nil
}

// ClearPDF forgets the uploaded PDF and clears the local log.
func (s *Service) ClearPDF(ctx context.Context) error {
	if err := s.backend.ClearPDF(ctx); err != nil {
		return s.fail("Error clearing PDF", fmt.Errorf("chat: clear pdf: %w", err))
	}
	s.log.Clear()
	s.banners.Success("PDF cleared successfully!")
	return nil
}

// UploadJD uploads the job description at path.
func (s *Service) UploadJD(ctx context.Context, path string) (*backend.JDUpload, error) {
	var resp *backend.JDUpload
	err := withFiles([]string{path}, func(files []backend.File) error {
		var err error
		resp, err = s.backend.UploadJD(ctx, files[0])
		return err
	})
	if err != nil {
		return nil, s.fail("Error uploading job description", fmt.Errorf("chat: upload jd: %w", err))
	}
	s.banners.Success(fmt.Sprintf("Job description uploaded (%d pages)", resp.Pages))
	return resp, nil
}

// UploadCVs replaces the server's CV set with the files at paths.
func (s *Service) UploadCVs(ctx context.Context, paths []string) (*backend.CVUpload, error) {
	var resp *backend.CVUpload
	err := withFiles(paths, func(files []backend.File) error {
		var err error
		resp, err = s.backend.UploadCVs(ctx, files)
		return err
	})
	if err != nil {
		return nil, s.fail("Error uploading CVs", fmt.Errorf("chat: upload cvs: %w", err))
	}
	s.banners.Success(fmt.Sprintf("%d CVs uploaded successfully!", resp.CVCount))
	return resp, nil
}

// CompareDocuments ranks the uploaded CVs against the job description and
// publishes the result.
func (s *Service) CompareDocuments(ctx context.Context) ([]backend.Match, error) {
	cmp, err := s.backend.CompareCVs(ctx)
	if err != nil {
		return nil, s.fail("Error comparing documents", fmt.Errorf("chat: compare documents: %w", err))
	}
	s.publish(cmp.Matches)
	if len(cmp.Matches) == 0 {
		s.banners.Success("No matches found")
	}
	return slices.Clone(cmp.Matches), nil
}

// ClearMatching forgets the job description, the CVs and the published
// ranking.
func (s *Service) ClearMatching(ctx context.Context) error {
	if err := s.backend.ClearMatching(ctx); err != nil {
		return s.fail("Error clearing matching data", fmt.Errorf("chat: clear matching: %w", err))
	}
	s.publish(nil)
	s.banners.Success("All data cleared successfully!")
	return nil
}

func (s *Service) publish(matches []backend.Match) {
	s.mu.Lock()
	s.matches = slices.Clone(matches)
	subs := slices.Clone(s.subs)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(slices.Clone(matches))
	}
}

// fail shows an error banner for err and returns it.
func (s *Service) fail(prefix string, err error) error {
	slog.Warn(prefix, "err", err)
	s.banners.Error(prefix + ": " + describe(err))
	return err
}

// describe returns the user-facing text for err: the server's own message
// for status errors, the full error otherwise.
func describe(err error) string {
	var se *backend.StatusError
	if errors.As(err, &se) {
		return se.Message()
	}
	return err.Error()
}

// withFiles opens every path, hands the open files to fn and closes them
// afterwards.
func withFiles(paths []string, fn func([]backend.File) error) error {
	files := make([]backend.File, 0, len(paths))
	var opened []*os.File
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open %s: %w", p, err)
		}
		opened = append(opened, f)
		files = append(files, backend.File{Name: filepath.Base(p), Content: f})
	}
	return fn(files)
}
