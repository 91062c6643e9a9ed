package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/middleware"
)

// Response 成功响应
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func fail(c *gin.Context, err error) {
	middleware.Abort(c, err)
}

// bind 解析JSON请求体，失败时已写入400响应
func bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, apperrors.Wrap(err, apperrors.ErrInvalidParam, "请求体格式错误"))
		return false
	}
	return true
}
