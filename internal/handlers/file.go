package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/projectportal/internal/services"
	"github.com/huangang/projectportal/pkg/response"
)

// multipart framing allowance on top of the file size limit
const uploadOverhead = 1 << 20

type FileHandler struct {
	fileService *services.FileService
}

func NewFileHandler(fileService *services.FileService) *FileHandler {
	return &FileHandler{fileService: fileService}
}

// Upload stores a PDF attachment
// POST /api/files
func (h *FileHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.fileService.MaxBytes()+uploadOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required and must not exceed the upload limit")
		return
	}

	file, err := h.fileService.Upload(currentActor(c), header)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, file)
}

// Download streams a stored file to an authorized caller
// GET /api/files/:id
func (h *FileHandler) Download(c *gin.Context) {
	id, ok := parseID(c, "id", "file")
	if !ok {
		return
	}

	file, path, err := h.fileService.Open(currentActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Type", file.ContentType)
	c.FileAttachment(path, file.OriginalName)
}
