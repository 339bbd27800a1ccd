package convert

import "fmt"

// エラーコードの一覧。HTTP層でステータスコードへ変換されます。
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeConversionFailed  = "CONVERSION_FAILED"
	CodeConverterNotFound = "CONVERTER_NOT_FOUND"
	CodeQueueFull         = "QUEUE_FULL"
	CodeInternalError     = "INTERNAL_ERROR"
)

// Error は変換処理のエラーをコード付きで表します。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError は Error を作成します。
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
