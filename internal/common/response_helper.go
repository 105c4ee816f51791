package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ResponseSuccess 返回成功响应
func ResponseSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse(data))
}

// ResponseCreated 返回创建成功响应（201）
func ResponseCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, SuccessResponse(data))
}

// ResponseError 返回错误响应，按业务状态码映射 HTTP 状态码
func ResponseError(c *gin.Context, code int, message string) {
	if message == "" {
		message = GetErrorMessage(code)
	}

	httpStatus := http.StatusInternalServerError
	switch code {
	case CodeInvalidRequest:
		httpStatus = http.StatusBadRequest
	case CodeNotFound:
		httpStatus = http.StatusNotFound
	case CodeForbidden:
		httpStatus = http.StatusForbidden
	case CodeConflict:
		httpStatus = http.StatusConflict
	}

	c.JSON(httpStatus, ErrorResponse(code, message))
}

// ResponseFromError 根据错误链返回响应；非业务错误一律按内部错误处理
func ResponseFromError(c *gin.Context, err error) {
	if be, ok := AsBusinessError(err); ok {
		ResponseError(c, be.Code, be.Message)
		return
	}
	ResponseError(c, CodeInternalError, "")
}

// ResponseBadRequest 返回参数错误响应
func ResponseBadRequest(c *gin.Context, message string) {
	ResponseError(c, CodeInvalidRequest, message)
}
