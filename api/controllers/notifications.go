package controllers

import (
	"net/http"

	"github.com/angelmondragon/escrow-backend/api/responses"
	"github.com/angelmondragon/escrow-backend/api/validators"
	"github.com/angelmondragon/escrow-backend/internal/notifications"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

var errNotificationsUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable")

// ListNotifications serves GET /notifications?limit=&cursor=&unreadOnly=.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errNotificationsUnavailable)
			return
		}
		caller, err := Caller(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		unreadOnly, err := validators.ParseQueryBool(r, "unreadOnly")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.List(ctx, notifications.ListParams{
			RecipientID: caller.ID,
			Limit:       page.Limit,
			Cursor:      page.Cursor,
			UnreadOnly:  unreadOnly,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errNotificationsUnavailable)
			return
		}
		caller, err := Caller(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		notificationID, err := validators.ParseUUIDParam(r, "notificationId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.MarkRead(ctx, caller.ID, notificationID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": notificationID, "read": true})
	}
}

func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errNotificationsUnavailable)
			return
		}
		caller, err := Caller(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		updated, err := svc.MarkAllRead(ctx, caller.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"updated": updated})
	}
}
