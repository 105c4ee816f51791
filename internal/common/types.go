package common

import "errors"

// ============================================================================
// 通用响应类型
// ============================================================================

// APIResponse 统一API响应格式
type APIResponse struct {
	Success bool   `json:"success"`           // 是否成功
	Data    any    `json:"data,omitempty"`    // 响应数据
	Message string `json:"message,omitempty"` // 提示信息
	Code    int    `json:"code"`              // 业务状态码
}

// SuccessResponse 成功响应
func SuccessResponse(data any) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
		Code:    0,
	}
}

// ErrorResponse 错误响应
func ErrorResponse(code int, message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
		Code:    code,
	}
}

// ============================================================================
// 业务状态码定义
// ============================================================================

const (
	// 成功状态码
	CodeSuccess = 0

	// 通用错误码 (1000-1999)
	CodeInvalidRequest = 1000 // 请求参数错误（校验失败，状态未变更）
	CodeNotFound       = 1001 // 资源不存在
	CodeForbidden      = 1002 // 审批人不在资格快照内
	CodeConflict       = 1003 // 工作流已终态，决策被拒绝
	CodeInternalError  = 1004 // 内部错误

	// 通知相关错误码 (2000-2099)
	CodeDeliveryFailed = 2000 // 渠道投递失败（仅记录日志，不向调用方返回）
)

// ErrorMessages 错误码对应的默认消息
var ErrorMessages = map[int]string{
	CodeSuccess:        "操作成功",
	CodeInvalidRequest: "请求参数错误",
	CodeNotFound:       "资源不存在",
	CodeForbidden:      "不在审批资格快照内",
	CodeConflict:       "工作流已终态",
	CodeInternalError:  "系统内部错误",
	CodeDeliveryFailed: "通知投递失败",
}

// GetErrorMessage 获取错误码对应的消息
func GetErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return "未知错误"
}

// ============================================================================
// 通用业务错误类型
// ============================================================================

// BusinessError 业务错误
type BusinessError struct {
	Code    int    // 错误码
	Message string // 错误信息
}

// Error 实现error接口
func (e *BusinessError) Error() string {
	return e.Message
}

// NewBusinessError 创建业务错误
func NewBusinessError(code int, message string) *BusinessError {
	if message == "" {
		message = GetErrorMessage(code)
	}
	return &BusinessError{
		Code:    code,
		Message: message,
	}
}

// AsBusinessError 提取错误链中的业务错误
func AsBusinessError(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsCode 判断错误是否为指定业务错误码
func IsCode(err error, code int) bool {
	if be, ok := AsBusinessError(err); ok {
		return be.Code == code
	}
	return false
}
