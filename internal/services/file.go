package services

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/huangang/projectportal/internal/config"
	"github.com/huangang/projectportal/internal/models"
	"github.com/huangang/projectportal/pkg/logger"
	"github.com/huangang/projectportal/pkg/response"
	"gorm.io/gorm"
)

const pdfContentType = "application/pdf"

// FileService stores uploaded PDFs on local disk under uuid names.
type FileService struct {
	db        *gorm.DB
	uploadDir string
	maxBytes  int64
}

func NewFileService(db *gorm.DB, cfg *config.StorageConfig) *FileService {
	maxMB := cfg.MaxUploadMB
	if maxMB <= 0 {
		maxMB = 10
	}
	dir := cfg.UploadDir
	if dir == "" {
		dir = "uploads"
	}
	return &FileService{db: db, uploadDir: dir, maxBytes: int64(maxMB) << 20}
}

func (s *FileService) MaxBytes() int64 { return s.maxBytes }

// Upload validates and stores a PDF owned by actor.
func (s *FileService) Upload(actor Actor, header *multipart.FileHeader) (*models.File, error) {
	if !actor.IsStudent() {
		return nil, response.NewForbidden("only students can upload proposal attachments")
	}
	if header == nil {
		return nil, response.NewBadRequest("file is required")
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		return nil, response.NewBadRequest("only PDF files are accepted")
	}
	if header.Size > s.maxBytes {
		return nil, response.NewBadRequest(fmt.Sprintf("file exceeds the %d MB limit", s.maxBytes>>20))
	}

	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return s.store(actor, filepath.Base(header.Filename), src)
}

func (s *FileService) store(actor Actor, name string, src io.Reader) (*models.File, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	head = head[:n]
	if http.DetectContentType(head) != pdfContentType {
		return nil, response.NewBadRequest("file content is not a PDF")
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, err
	}
	storedName := uuid.NewString() + ".pdf"
	path := filepath.Join(s.uploadDir, storedName)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	written, err := io.Copy(dst, io.LimitReader(io.MultiReader(bytes.NewReader(head), src), s.maxBytes+1))
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err == nil && written > s.maxBytes {
		err = response.NewBadRequest(fmt.Sprintf("file exceeds the %d MB limit", s.maxBytes>>20))
	}
	if err != nil {
		s.remove(path)
		return nil, err
	}

	file := models.File{
		AuthorID:     actor.ID,
		OriginalName: name,
		StoredName:   storedName,
		ContentType:  pdfContentType,
		Size:         written,
	}
	if err := s.db.Create(&file).Error; err != nil {
		s.remove(path)
		return nil, err
	}
	return &file, nil
}

// Open returns the file record and its path on disk when actor may read it:
// the uploader, the HOD, or anyone who can see the linked proposal.
func (s *FileService) Open(actor Actor, id uint) (*models.File, string, error) {
	var file models.File
	if err := s.db.First(&file, id).Error; err != nil {
		return nil, "", notFoundOr(err, "file not found")
	}

	allowed := file.AuthorID == actor.ID || actor.IsHOD()
	if !allowed && file.ProposalID != nil {
		var proposal models.Proposal
		if err := s.db.First(&proposal, *file.ProposalID).Error; err != nil && !isRecordNotFound(err) {
			return nil, "", err
		} else if err == nil {
			ok, err := canViewProposal(s.db, actor, &proposal)
			if err != nil {
				return nil, "", err
			}
			allowed = ok
		}
	}
	if !allowed {
		return nil, "", response.NewForbidden("you cannot access this file")
	}

	path := filepath.Join(s.uploadDir, file.StoredName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, "", response.NewNotFound("file content is missing")
		}
		return nil, "", err
	}
	return &file, path, nil
}

func (s *FileService) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("path", path).Msg("failed to remove partial upload")
	}
}
