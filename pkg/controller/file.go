package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tgdrive/filebox/pkg/httputil"
	"github.com/tgdrive/filebox/pkg/mapper"
	"github.com/tgdrive/filebox/pkg/models"
	"github.com/tgdrive/filebox/pkg/schemas"
	"github.com/tgdrive/filebox/pkg/services"
	"github.com/tgdrive/filebox/pkg/store"
)

const (
	multipartMemory    = 32 << 20
	multipartOverheads = 1 << 20
)

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (c *Controller) ListFiles(w http.ResponseWriter, r *http.Request) {
	var q schemas.ListQuery
	if err := httputil.BindQuery(r, &q); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	uid := userID(r)
	res, err := c.Entries.List(r.Context(), uid, services.ListParams{
		Page:     q.Page,
		Limit:    q.Limit,
		Kind:     models.Kind(q.Type),
		ParentID: optional(q.ParentFolder),
	})
	if err != nil {
		httputil.NewError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, schemas.EntryList{
		Message: "Files retrieved successfully",
		Items:   mapper.ToEntryList(res.Items, uid, c.now()),
		Total:   res.Total,
		Page:    res.Page,
		Limit:   res.Limit,
	})
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &httputil.Error{Status: http.StatusBadRequest, Message: services.ErrFileTooLarge.Error()}
	}
	return &httputil.Error{Status: http.StatusBadRequest, Message: "invalid multipart form"}
}

// UploadFile accepts a multipart form with a `file` part and optional `name`
// and `parentFolder` fields.
func (c *Controller) UploadFile(w http.ResponseWriter, r *http.Request) {
	if limit := c.cnf.Files.MaxUploadSize; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverheads)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		httputil.NewError(w, r, uploadError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := &services.UploadInput{
		Name:     r.FormValue("name"),
		ParentID: optional(r.FormValue("parentFolder")),
	}
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		in.Body = file
		in.Size = header.Size
		in.DeclaredMIME = header.Header.Get("Content-Type")
		if strings.TrimSpace(in.Name) == "" {
			in.Name = header.Filename
		}
	case !errors.Is(err, http.ErrMissingFile):
		httputil.NewError(w, r, uploadError(err))
		return
	}

	e, err := c.Entries.Upload(r.Context(), userID(r), in)
	if err != nil {
		httputil.NewError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, schemas.FileCreated{
		Message: "File uploaded successfully",
		File:    mapper.ToEntryOut(e, true, c.now()),
	})
}

func (c *Controller) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var in schemas.CreateFolder
	if err := httputil.Bind(r, &in); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	e, err := c.Entries.CreateFolder(r.Context(), userID(r), in.Name, in.ParentFolder)
	if err != nil {
		httputil.NewError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, schemas.FolderCreated{
		Message: "Folder created successfully",
		Folder:  mapper.ToEntryOut(e, true, c.now()),
	})
}

func (c *Controller) SearchFiles(w http.ResponseWriter, r *http.Request) {
	var q schemas.SearchQuery
	if err := httputil.BindQuery(r, &q); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	uid := userID(r)
	items, err := c.Entries.Search(r.Context(), uid, store.SearchFilter{
		Query:    strings.TrimSpace(q.Query),
		FileType: q.FileType,
		ParentID: optional(q.ParentFolder),
	})
	if err != nil {
		httputil.NewError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, schemas.Items{
		Message: "Search completed",
		Items:   mapper.ToEntryList(items, uid, c.now()),
	})
}

func (c *Controller) RecentFiles(w http.ResponseWriter, r *http.Request) {
	var q schemas.RecentQuery
	if err := httputil.BindQuery(r, &q); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	uid := userID(r)
	items, err := c.Entries.Recent(r.Context(), uid, q.Limit)
	if err != nil {
		httputil.NewError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, schemas.Items{
		Message: "Recent files retrieved successfully",
		Items:   mapper.ToEntryList(items, uid, c.now()),
	})
}

func (c *Controller) FolderDetails(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	e, err := c.Entries.FolderDetails(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		httputil.NewError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, schemas.Item{
		Message: "Folder details retrieved successfully",
		Item:    mapper.ToEntryOut(e, e.OwnerID == uid, c.now()),
	})
}

func (c *Controller) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var in schemas.UpdateEntry
	if err := httputil.Bind(r, &in); err != nil {
		httputil.NewError(w, r, err)
		return
	}
	e, err := c.Entries.Update(r.Context(), userID(r), chi.URLParam(r, "id"), in.Name, in.ParentFolder)
	if err != nil {
		httputil.NewError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, schemas.Item{
		Message: "Item updated successfully",
		Item:    mapper.ToEntryOut(e, true, c.now()),
	})
}

func (c *Controller) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	e, err := c.Entries.Delete(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		httputil.NewError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, schemas.Item{
		Message: "Item deleted successfully",
		Item:    mapper.ToEntryOut(e, true, c.now()),
	})
}
