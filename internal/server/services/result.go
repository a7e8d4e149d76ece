package services

import "github.com/RightsTracker/NuGetGallery/internal/server/models"

// ResultCode is the terminal outcome of a pipeline operation.
type ResultCode int

const (
	ResultOK ResultCode = iota
	ResultCreated
	ResultBadRequest
	ResultUnauthorized
	ResultNotFound
	ResultConflict
)

func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return "ok"
	case ResultCreated:
		return "created"
	case ResultBadRequest:
		return "bad_request"
	case ResultUnauthorized:
		return "unauthorized"
	case ResultNotFound:
		return "not_found"
	case ResultConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// OperationResult reports an expected business outcome. Failures that are not
// business outcomes are returned as errors instead.
type OperationResult struct {
	Code    ResultCode
	Message string
	Success bool
	Package *models.Package
}

func okResult(pkg *models.Package) *OperationResult {
	return &OperationResult{Code: ResultOK, Success: true, Package: pkg}
}

func createdResult(pkg *models.Package) *OperationResult {
	return &OperationResult{Code: ResultCreated, Success: true, Package: pkg}
}

func failedResult(code ResultCode, message string) *OperationResult {
	return &OperationResult{Code: code, Message: message}
}
