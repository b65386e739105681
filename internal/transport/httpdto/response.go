package httpdto

// Response is the envelope for every JSON reply. RequestID echoes the
// X-Request-Id the middleware assigned so clients can quote it in bug
// reports.
type Response[T any] struct {
	Success   bool   `json:"success"`
	Data      T      `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}

func (r Response[T]) WithRequestID(id string) Response[T] {
	r.RequestID = id
	return r
}
