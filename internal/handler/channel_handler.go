/*
Package handler provides HTTP handler functions for channel management.

Membership-changing operations never touch the database directly: they go
through the event router so the realtime indexes stay consistent with the
persisted truth and the affected subscribers get notified.
*/
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"rtchat/internal/app/chat"
	"rtchat/internal/pkg/auth/jwt"
	"rtchat/internal/pkg/errs"
	"rtchat/internal/pkg/logx"
	"rtchat/internal/pkg/req"
	"rtchat/internal/pkg/resp"
)

const (
	// defaultMessageLimit is the history page size when the client omits one.
	defaultMessageLimit = 50

	// maxMessageLimit caps a single history fetch.
	maxMessageLimit = 200

	// maxDescriptionLen caps the optional channel description.
	maxDescriptionLen = 200
)

// HandleListChannels returns every channel with its member set, most recently
// active first.
func HandleListChannels(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if identity := jwt.GetPayloadFromContext(r); identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		channels, err := deps.Store.ListChannels(r.Context())
		if err != nil {
			logx.Error(err, "failed to list channels")
			resp.RespondError(w, r, errs.NewError(errs.ErrDependencyUnavailable))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"channels": channels,
		})
	}
}

type CreateChannelInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// HandleCreateChannel creates a channel with the caller as creator and first
// member, then seeds the router's membership cache.
func HandleCreateChannel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input CreateChannelInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		name := strings.TrimSpace(input.Name)
		nameLen := utf8.RuneCountInString(name)
		if nameLen < 3 || nameLen > 50 {
			resp.RespondError(w, r, errs.NewError(errs.ErrChannelNameInvalid))
			return
		}

		description := strings.TrimSpace(input.Description)
		if utf8.RuneCountInString(description) > maxDescriptionLen {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		snapshot, err := deps.Store.CreateChannel(r.Context(), name, description, identity.ID)
		if err != nil {
			logx.Error(err, "failed to create channel", "creator_id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrDependencyUnavailable))
			return
		}

		deps.Router.ChannelCreated(snapshot)

		resp.RespondSuccess(w, r, map[string]any{
			"channel": snapshot,
		})
	}
}

// HandleGetChannel returns one channel snapshot with its member list.
func HandleGetChannel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if identity := jwt.GetPayloadFromContext(r); identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		snapshot, err := deps.Store.GetChannel(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, chat.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrChannelNotFound))
				return
			}
			logx.Error(err, "failed to fetch channel")
			resp.RespondError(w, r, errs.NewError(errs.ErrDependencyUnavailable))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"channel": snapshot,
		})
	}
}

// HandleDeleteChannel deletes a channel on behalf of its creator.
func HandleDeleteChannel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		if customErr := deps.Router.DeleteChannel(r.Context(), identity.ID, chi.URLParam(r, "id")); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleJoinChannel adds the caller to the channel's durable member set.
func HandleJoinChannel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		snapshot, customErr := deps.Router.RequestJoin(r.Context(), identity.ID, chi.URLParam(r, "id"), "")
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"channel": snapshot,
		})
	}
}

// HandleLeaveChannel removes the caller from the channel's durable member set.
func HandleLeaveChannel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		if customErr := deps.Router.LeaveDurable(r.Context(), identity.ID, chi.URLParam(r, "id")); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

type KickMemberInput struct {
	UserID string `json:"userId"`
}

// HandleKickMember removes a member from a channel on behalf of its creator.
func HandleKickMember(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input KickMemberInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.UserID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if customErr := deps.Router.Kick(r.Context(), identity.ID, chi.URLParam(r, "id"), input.UserID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleListMessages returns the channel's recent message history in
// chronological order. Members only.
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		channelID := chi.URLParam(r, "id")

		snapshot, err := deps.Store.GetChannel(r.Context(), channelID)
		if err != nil {
			if errors.Is(err, chat.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrChannelNotFound))
				return
			}
			logx.Error(err, "failed to fetch channel for message history")
			resp.RespondError(w, r, errs.NewError(errs.ErrDependencyUnavailable))
			return
		}

		isMember := false
		for _, member := range snapshot.Members {
			if member.ID == identity.ID {
				isMember = true
				break
			}
		}
		if !isMember {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotChannelMember))
			return
		}

		limit := defaultMessageLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
			if parsed > maxMessageLimit {
				parsed = maxMessageLimit
			}
			limit = parsed
		}

		messages, err := deps.Store.ListMessages(r.Context(), channelID, limit)
		if err != nil {
			logx.Error(err, "failed to list messages", "channel_id", channelID)
			resp.RespondError(w, r, errs.NewError(errs.ErrDependencyUnavailable))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"messages": messages,
		})
	}
}
