package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tgdrive/filebox/pkg/httputil"
	"github.com/tgdrive/filebox/pkg/mapper"
	"github.com/tgdrive/filebox/pkg/schemas"
)

func (c *Controller) ShareWithEmail(w http.ResponseWriter, r *http.Request) {
	var in schemas.ShareEmail
	if err := httputil.Bind(r, &in); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	if err := c.Shares.ShareWithEmail(r.Context(), userID(r), in.ID, in.Email); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	message(w, http.StatusOK, "Item shared successfully")
}

func (c *Controller) GenerateShareLink(w http.ResponseWriter, r *http.Request) {
	var in schemas.ShareLinkRequest
	if err := httputil.Bind(r, &in); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	link, err := c.Shares.GenerateLink(r.Context(), userID(r), in.ID, in.ExpiresInDays)
	if err != nil {
		httputil.NewError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, schemas.ShareLinkOut{
		Message:   "Share link generated successfully",
		ShareURL:  link.URL,
		ExpiresAt: link.ExpiresAt,
	})
}

func (c *Controller) RevokeShareLink(w http.ResponseWriter, r *http.Request) {
	if err := c.Shares.RevokeLink(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	message(w, http.StatusOK, "Share link revoked")
}

// AccessShareLink is public. Shared folders come with their direct children.
func (c *Controller) AccessShareLink(w http.ResponseWriter, r *http.Request) {
	item, err := c.Shares.AccessByLink(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "token"))
	if err != nil {
		httputil.NewError(w, r, err)
		return
	}
	now := c.now()
	out := mapper.ToEntryOut(item.Entry, false, now)
	if item.Entry.IsFolder() {
		out.Contents = mapper.ToEntryList(item.Contents, "", now)
	}
	httputil.WriteJSON(w, http.StatusOK, schemas.Item{Message: "Shared item retrieved successfully", Item: out})
}
