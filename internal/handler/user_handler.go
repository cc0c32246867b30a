package handler

import (
	"net/http"

	"rtchat/internal/pkg/auth/jwt"
	"rtchat/internal/pkg/errs"
	"rtchat/internal/pkg/logx"
	"rtchat/internal/pkg/resp"
)

// UserView is the user representation returned by the listing endpoint,
// enriched with the live presence flag from the session registry.
type UserView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

// HandleListUsers returns all registered users with their online status.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if identity := jwt.GetPayloadFromContext(r); identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		accounts, err := deps.Store.ListUsers(r.Context())
		if err != nil {
			logx.Error(err, "failed to list users")
			resp.RespondError(w, r, errs.NewError(errs.ErrDependencyUnavailable))
			return
		}

		sessions := deps.Router.Sessions()
		views := make([]UserView, 0, len(accounts))
		for _, account := range accounts {
			views = append(views, UserView{
				ID:       account.ID,
				Username: account.Username,
				Online:   sessions.IsOnline(account.ID),
			})
		}

		resp.RespondSuccess(w, r, map[string]any{
			"users": views,
		})
	}
}
