package httpapi

import (
	"errors"
	"net/http"

	"github.com/RightsTracker/NuGetGallery/internal/filex"
	"github.com/RightsTracker/NuGetGallery/internal/server/services"
)

var statusByCode = map[services.ResultCode]int{
	services.ResultOK:           http.StatusOK,
	services.ResultCreated:      http.StatusCreated,
	services.ResultBadRequest:   http.StatusBadRequest,
	services.ResultUnauthorized: http.StatusUnauthorized,
	services.ResultNotFound:     http.StatusNotFound,
	services.ResultConflict:     http.StatusConflict,
}

// StatusForResult maps a pipeline outcome to an HTTP status.
func StatusForResult(code services.ResultCode) int {
	if st, ok := statusByCode[code]; ok {
		return st
	}
	return http.StatusInternalServerError
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := s.logger.With("request_id", RequestIDFromContext(ctx))
	user := UserFromContext(ctx)

	body, err := filex.Spool(s.spoolDir, r.Body, s.maxUploadBytes)
	if err != nil {
		if errors.Is(err, filex.ErrTooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		logger.Error(ctx, "failed to read upload", "error", err)
		writeMessage(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer body.Close()

	if body.Size() == 0 {
		writeMessage(w, http.StatusBadRequest, "the request body is empty")
		return
	}

	res, err := s.uploader.ValidateUploadedSymbolsPackage(ctx, body, user)
	if err != nil {
		logger.Error(ctx, "symbols validation failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !res.Success {
		s.writeResult(w, res)
		return
	}

	res, err = s.uploader.CreateAndUploadSymbolsPackage(ctx, res.Package, body)
	if err != nil {
		logger.Error(ctx, "symbols upload failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}

	if res.Success && res.Package != nil {
		logger.Info(ctx, "symbols package uploaded", "id", res.Package.ID, "version", res.Package.NormalizedVersion, "user", user.Username)
	}
	s.writeResult(w, res)
}

func (s *Server) writeResult(w http.ResponseWriter, res *services.OperationResult) {
	writeJSON(w, StatusForResult(res.Code), response{Code: res.Code.String(), Message: res.Message})
}
