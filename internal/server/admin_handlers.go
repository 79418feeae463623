package server

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/SevenofThr4wn/HardwareStore/internal/auth"
	"github.com/SevenofThr4wn/HardwareStore/internal/repository"
	"github.com/SevenofThr4wn/HardwareStore/internal/services/directory"
	"github.com/SevenofThr4wn/HardwareStore/internal/services/iam"
)

const maxUserPageSize = 500

// HandleTriggerSync handles POST /admin/sync.
// The run is synchronous; a failed run is still a 200 carrying run.error.
func HandleTriggerSync(sync SyncController, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sync == nil {
			http.Error(w, "directory sync disabled", http.StatusServiceUnavailable)
			return
		}

		principal, _ := auth.GetCurrentPrincipal(r.Context())
		logger.Info("manual directory sync requested", zap.String("subject", principal.Subject))

		run, err := sync.TriggerSyncNow(r.Context())
		if err != nil {
			if errors.Is(err, directory.ErrSchedulerStopped) {
				http.Error(w, "directory sync stopped", http.StatusServiceUnavailable)
				return
			}
			// Caller went away or Stop cancelled the wait.
			http.Error(w, "directory sync cancelled", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

// HandleLastSync handles GET /admin/sync.
func HandleLastSync(sync SyncController) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if sync == nil {
			http.Error(w, "directory sync disabled", http.StatusServiceUnavailable)
			return
		}
		run, ok := sync.LastRun()
		if !ok {
			http.Error(w, "no sync has run yet", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

// UserListResponse is the body of GET /admin/users.
type UserListResponse struct {
	Users  []UserResponse `json:"users"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// HandleListUsers handles GET /admin/users?limit=&offset=.
func HandleListUsers(iamService iam.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit", 100)
		if err != nil || limit <= 0 || limit > maxUserPageSize {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		offset, err := queryInt(r, "offset", 0)
		if err != nil || offset < 0 {
			http.Error(w, "offset must not be negative", http.StatusBadRequest)
			return
		}

		users, total, err := iamService.ListLocalUsers(r.Context(), repository.ListOptions{Limit: limit, Offset: offset})
		if err != nil {
			logger.Error("list local users", zap.Error(err))
			http.Error(w, "failed to list users", http.StatusInternalServerError)
			return
		}

		resp := UserListResponse{
			Users:  make([]UserResponse, 0, len(users)),
			Total:  total,
			Limit:  limit,
			Offset: offset,
		}
		for i := range users {
			resp.Users = append(resp.Users, newUserResponse(&users[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
