package api_error

// JSONAPIError is the body of every failed request. Code is one of the
// api.ErrorCode values, ErrorDetails the internal error chain.
type JSONAPIError struct {
	Code         string `json:"code"`
	Msg          string `json:"msg"`
	ErrorDetails string `json:"error_details"`
}
