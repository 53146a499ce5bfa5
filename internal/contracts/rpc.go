package contracts

// RPCResponse is the uniform envelope every RPC reply carries on the wire:
// {"success":bool, "data":{...}|null, "error_code":string|null,
//  "message":string|null, "correlation_id":string}.
type RPCResponse struct {
	Success       bool   `json:"success"`
	Data          any    `json:"data"`
	ErrorCode     string `json:"error_code,omitempty"`
	Message       string `json:"message,omitempty"`
	CorrelationID string `json:"correlation_id"`
}

func OK(data any, correlationID string) RPCResponse {
	return RPCResponse{Success: true, Data: data, CorrelationID: correlationID}
}

func Fail(code, message, correlationID string) RPCResponse {
	return RPCResponse{Success: false, ErrorCode: code, Message: message, CorrelationID: correlationID}
}
