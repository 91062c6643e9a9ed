package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	err = New(ErrSaveSlotNotFound, "slot-1")
	suite.Equal("存档不存在", err.Message)
	suite.Equal("slot-1", err.Details)

	// 多个详情
	err = New(ErrValidation, "名字不能为空", "背景无效")
	suite.Equal("名字不能为空; 背景无效", err.Details)
}

func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrUnknownStore, "store=%s", "weather")
	suite.Equal(ErrUnknownStore, err.Code)
	suite.Equal("store=weather", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	originalErr := errors.New("disk full")
	wrappedErr := Wrap(originalErr, ErrDatabaseInsert)
	suite.Equal(ErrDatabaseInsert, wrappedErr.Code)
	suite.Equal("disk full", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	suite.Nil(Wrap(nil, ErrUnknown))

	// 包装已有的AppError时保留原始错误码
	appErr := New(ErrSaveSlotNotFound, "s1")
	wrappedAppErr := Wrap(appErr, ErrInvalidParam, "加载存档")
	suite.Equal(ErrSaveSlotNotFound, wrappedAppErr.Code)
	suite.Contains(wrappedAppErr.Details, "加载存档")
	suite.Contains(wrappedAppErr.Details, "s1")
}

func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("timeout")
	wrappedErr := Wrapf(originalErr, ErrDatabaseConnect, "driver %s", "sqlite")
	suite.Equal("driver sqlite", wrappedErr.Details)
	suite.Equal(originalErr, errors.Unwrap(wrappedErr))
}

func (suite *ErrorsTestSuite) TestIsAndGetCode() {
	err := New(ErrRollbackFailed)
	suite.True(Is(err, ErrRollbackFailed))
	suite.False(Is(err, ErrNotFound))
	suite.False(Is(nil, ErrRollbackFailed))
	suite.False(Is(errors.New("plain"), ErrUnknown))

	suite.Equal(ErrRollbackFailed, GetCode(err))
	suite.Equal(ErrUnknown, GetCode(errors.New("plain")))
	suite.Equal(ErrorCode(0), GetCode(nil))
}

func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{Code: ErrSaveSlotNotFound, Message: "存档不存在"}
	suite.Equal("[2300] 存档不存在", err.Error())

	err.Details = "s9"
	suite.Equal("[2300] 存档不存在: s9", err.Error())
}

func (suite *ErrorsTestSuite) TestWithCause() {
	cause := errors.New("constraint failed")
	err := New(ErrDatabaseUpdate).WithCause(cause)
	suite.Equal(cause, err.Cause)
	suite.Equal("constraint failed", err.Details)

	// 已有Details的情况
	err2 := New(ErrDatabaseUpdate, "更新失败").WithCause(cause)
	suite.Equal("更新失败", err2.Details)
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidParam, 400},
		{ErrValidation, 400},
		{ErrUnknownOperation, 400},
		{ErrSaveSlotNotFound, 404},
		{ErrUpdateNotFound, 404},
		{ErrSaveSlotExists, 409},
		{ErrBatchAborted, 409},
		{ErrPermissionDenied, 403},
		{ErrTimeout, 408},
		{ErrNotImplemented, 501},
		{ErrRateLimited, 429},
		{ErrTokenInvalid, 401},
		{ErrDatabaseConnect, 503},
		{ErrUnknown, 500},
	}

	for _, tc := range testCases {
		err := New(tc.code)
		suite.Equal(tc.expected, err.HTTPStatus(), "错误码 %d 应该返回HTTP状态码 %d", tc.code, tc.expected)
	}
}

func (suite *ErrorsTestSuite) TestIsRetryableAndCritical() {
	suite.True(IsRetryable(New(ErrTimeout)))
	suite.True(IsRetryable(New(ErrTransaction)))
	suite.False(IsRetryable(New(ErrValidation)))
	suite.False(IsRetryable(nil))

	suite.True(IsCritical(New(ErrRollbackFailed)))
	suite.True(IsCritical(New(ErrDataIntegrity)))
	suite.False(IsCritical(New(ErrSaveSlotNotFound)))
	suite.False(IsCritical(nil))
}

func (suite *ErrorsTestSuite) TestStackCapture() {
	err := New(ErrUnknown)
	suite.NotEmpty(err.Stack)
	suite.NotEmpty(err.GetStack())
}

func (suite *ErrorsTestSuite) TestErrorResponse() {
	err := New(ErrSaveSlotNotFound, "s1")
	response := NewErrorResponse(err, "req-123")

	suite.False(response.Success)
	suite.Equal(err, response.Error)
	suite.Equal("req-123", response.RequestID)
	suite.Greater(response.Timestamp, int64(0))
}

func (suite *ErrorsTestSuite) TestUnknownErrorCode() {
	err := New(ErrorCode(99999))
	suite.Equal(ErrorCode(99999), err.Code)
	suite.Equal("未知错误", err.Message)
}

func (suite *ErrorsTestSuite) TestDomainMessages() {
	messages := map[ErrorCode]string{
		ErrValidation:       "角色数据校验失败",
		ErrUnknownStore:     "未知的存储",
		ErrUnknownOperation: "未知的操作",
		ErrSaveSlotNotFound: "存档不存在",
		ErrSaveSlotExists:   "存档已存在",
		ErrSnapshotVersion:  "不支持的快照版本",
		ErrUpdateNotFound:   "乐观更新不存在",
		ErrRollbackFailed:   "回滚失败",
		ErrBatchAborted:     "批量操作已中止",
	}

	for code, expectedMsg := range messages {
		suite.Equal(expectedMsg, New(code).Message)
	}
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
