package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/docformat/internal/namelist"
	"github.com/feichai0017/docformat/pkg/logger"
)

// CompareRequest holds two newline-separated lists.
type CompareRequest struct {
	List1 string `json:"list1"`
	List2 string `json:"list2"`
}

type NameListHandler struct {
	logger logger.Logger
}

func NewNameListHandler(log logger.Logger) *NameListHandler {
	return &NameListHandler{logger: log}
}

// Compare 名单比对
func (h *NameListHandler) Compare(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	c.JSON(http.StatusOK, namelist.CompareText(req.List1, req.List2))
}
