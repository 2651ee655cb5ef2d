package services

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/tgdrive/filebox/internal/database"
	"github.com/tgdrive/filebox/pkg/models"
	"github.com/tgdrive/filebox/pkg/store"
)

func ptr[T any](v T) *T { return &v }

func (s *ServicesSuite) TestUploadRecordsBlob() {
	s.user("a", "Ann", "a@x.io")
	e := s.upload("a", "report.pdf", nil)

	s.Equal(models.KindFile, e.Kind)
	s.Equal("document", *e.FileType)
	s.Equal("application/pdf", *e.MimeType)
	s.EqualValues(11, *e.SizeBytes)
	s.Nil(e.ParentID)
	s.True(strings.HasPrefix(*e.StorageID, "user_a/2025/06/01/"))
	s.Equal("http://localhost:8080/blobs/"+*e.StorageID, *e.StorageURL)
	s.Equal(1, s.blobs.Len())
}

func (s *ServicesSuite) TestUploadSniffsGenericMime() {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	e, err := s.srv.Entries.Upload(s.ctx, "a", &UploadInput{
		Name: "pic", DeclaredMIME: "application/octet-stream", Size: int64(len(png)), Body: bytes.NewReader(png),
	})
	s.Require().NoError(err)
	s.Equal("image/png", *e.MimeType)
	s.Equal("image", *e.FileType)
}

func (s *ServicesSuite) TestDuplicateNames() {
	s.upload("a", "report.pdf", nil)

	_, err := s.srv.Entries.Upload(s.ctx, "a", s.file("report.pdf", nil, "again"))
	s.status(err, http.StatusBadRequest, ErrDuplicateName)
	s.Equal(1, s.blobs.Len(), "rejected duplicate must not leave a blob")

	// a folder may share the file's name
	s.folder("a", "report.pdf", nil)
	_, err = s.srv.Entries.CreateFolder(s.ctx, "a", "report.pdf", nil)
	s.status(err, http.StatusBadRequest, ErrDuplicateName)

	// and the same name elsewhere is fine
	docs := s.folder("a", "Docs", nil)
	s.upload("a", "report.pdf", &docs.ID)
	s.upload("b", "report.pdf", nil)
}

func (s *ServicesSuite) TestUploadValidation() {
	_, err := s.srv.Entries.Upload(s.ctx, "a", &UploadInput{Name: "x"})
	s.status(err, http.StatusBadRequest, ErrFileRequired)

	_, err = s.srv.Entries.Upload(s.ctx, "a", s.file("  ", nil, "x"))
	s.status(err, http.StatusBadRequest, ErrNameRequired)

	big := s.file("big.bin", nil, "x")
	big.Size = s.cnf.Files.MaxUploadSize + 1
	_, err = s.srv.Entries.Upload(s.ctx, "a", big)
	s.status(err, http.StatusBadRequest, ErrFileTooLarge)
}

func (s *ServicesSuite) TestParentMustBeOwnedFolder() {
	f := s.upload("a", "report.pdf", nil)
	other := s.folder("b", "Theirs", nil)

	_, err := s.srv.Entries.CreateFolder(s.ctx, "a", "x", &f.ID)
	s.status(err, http.StatusBadRequest, ErrParentNotFolder)

	_, err = s.srv.Entries.CreateFolder(s.ctx, "a", "x", &other.ID)
	s.status(err, http.StatusNotFound, ErrParentNotFound)

	_, err = s.srv.Entries.Upload(s.ctx, "a", s.file("y", ptr("missing"), "x"))
	s.status(err, http.StatusNotFound, ErrParentNotFound)

	// an empty parent is the root
	e := s.folder("a", "Root level", ptr(""))
	s.Nil(e.ParentID)
}

func (s *ServicesSuite) TestUploadCompensatesFailedRecord() {
	s.store.FailEntryCreate = errors.New("db down")
	_, err := s.srv.Entries.Upload(s.ctx, "a", s.file("report.pdf", nil, "x"))
	s.status(err, http.StatusInternalServerError, nil)
	s.Equal(0, s.blobs.Len())

	orphans, err := s.store.Orphans().List(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(orphans)
}

func (s *ServicesSuite) TestUploadRecordsOrphanWhenCompensationFails() {
	s.store.FailEntryCreate = database.ErrKeyConflict
	s.blobs.FailDelete = errors.New("store unavailable")

	_, err := s.srv.Entries.Upload(s.ctx, "a", s.file("report.pdf", nil, "x"))
	s.status(err, http.StatusBadRequest, ErrDuplicateName)

	orphans, err := s.store.Orphans().List(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(orphans, 1)
	s.True(strings.HasPrefix(orphans[0].StorageID, "user_a/"))
}

func (s *ServicesSuite) TestListPagesAndEmpty() {
	_, err := s.srv.Entries.List(s.ctx, "a", ListParams{})
	s.status(err, http.StatusNotFound, ErrEmptyList)

	for _, n := range []string{"one", "two", "three"} {
		s.folder("a", n, nil)
		s.advance(time.Second)
	}
	res, err := s.srv.Entries.List(s.ctx, "a", ListParams{Page: 1, Limit: 2})
	s.Require().NoError(err)
	s.Equal(3, res.Total)
	s.Require().Len(res.Items, 2)
	s.Equal("three", res.Items[0].Name)

	res, err = s.srv.Entries.List(s.ctx, "a", ListParams{})
	s.Require().NoError(err)
	s.Equal(1, res.Page)
	s.Equal(20, res.Limit)

	_, err = s.srv.Entries.List(s.ctx, "a", ListParams{Page: 5, Limit: 2})
	s.status(err, http.StatusNotFound, ErrEmptyList)

	s.cnf.Files.EmptyListOK = true
	res, err = s.srv.Entries.List(s.ctx, "a", ListParams{Page: 5, Limit: 2})
	s.Require().NoError(err)
	s.Empty(res.Items)
}

func (s *ServicesSuite) TestListFilters() {
	docs := s.folder("a", "Docs", nil)
	s.upload("a", "in-docs.pdf", &docs.ID)
	s.upload("a", "top.pdf", nil)

	res, err := s.srv.Entries.List(s.ctx, "a", ListParams{Kind: models.KindFolder})
	s.Require().NoError(err)
	s.Require().Len(res.Items, 1)
	s.Equal("Docs", res.Items[0].Name)

	res, err = s.srv.Entries.List(s.ctx, "a", ListParams{ParentID: &docs.ID})
	s.Require().NoError(err)
	s.Require().Len(res.Items, 1)
	s.Equal("in-docs.pdf", res.Items[0].Name)
}

func (s *ServicesSuite) TestSearchDedupesAndKeepsSharedUnfiltered() {
	s.user("a", "Ann", "a@x.io")
	s.user("b", "Bob", "b@x.io")
	mine := s.upload("a", "Beach.pdf", nil)
	s.upload("a", "notes.pdf", nil)
	theirs := s.upload("b", "budget.pdf", nil)

	s.Require().NoError(s.srv.Shares.ShareWithEmail(s.ctx, "b", theirs.ID, "a@x.io"))

	items, err := s.srv.Entries.Search(s.ctx, "a", store.SearchFilter{Query: "beach"})
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Equal(mine.ID, items[0].ID)
	s.Equal(theirs.ID, items[1].ID)

	// a granted entry that also matches the query is listed once
	s.Require().NoError(s.srv.Shares.ShareWithEmail(s.ctx, "a", mine.ID, "b@x.io"))
	items, err = s.srv.Entries.Search(s.ctx, "b", store.SearchFilter{Query: "b"})
	s.Require().NoError(err)
	ids := map[string]int{}
	for _, e := range items {
		ids[e.ID]++
	}
	s.Equal(map[string]int{mine.ID: 1, theirs.ID: 1}, ids)
}

func (s *ServicesSuite) TestRecentMergesOwnedAndShared() {
	s.user("a", "Ann", "a@x.io")
	s.user("b", "Bob", "b@x.io")
	s.upload("a", "old.pdf", nil)
	s.advance(time.Minute)
	shared := s.upload("b", "mid.pdf", nil)
	s.advance(time.Minute)
	newest := s.upload("a", "new.pdf", nil)
	s.Require().NoError(s.srv.Shares.ShareWithEmail(s.ctx, "b", shared.ID, "a@x.io"))

	items, err := s.srv.Entries.Recent(s.ctx, "a", 2)
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Equal(newest.ID, items[0].ID)
	s.Equal(shared.ID, items[1].ID)

	items, err = s.srv.Entries.Recent(s.ctx, "a", 0)
	s.Require().NoError(err)
	s.Len(items, 3)
}

func (s *ServicesSuite) TestDeleteFolders() {
	photos := s.folder("a", "Photos", nil)
	sibling := s.folder("a", "Music", nil)
	pic := s.upload("a", "beach.pdf", &photos.ID)

	_, err := s.srv.Entries.Delete(s.ctx, "a", photos.ID)
	s.status(err, http.StatusBadRequest, ErrNotEmpty)

	_, err = s.srv.Entries.Delete(s.ctx, "a", pic.ID)
	s.Require().NoError(err)
	s.Equal(0, s.blobs.Len())

	_, err = s.srv.Entries.Delete(s.ctx, "a", photos.ID)
	s.Require().NoError(err)

	_, err = s.store.Entries().Get(s.ctx, sibling.ID)
	s.NoError(err)
}

func (s *ServicesSuite) TestDeleteHidesForeignEntries() {
	f := s.upload("a", "report.pdf", nil)
	_, err := s.srv.Entries.Delete(s.ctx, "b", f.ID)
	s.status(err, http.StatusNotFound, ErrEntryNotFound)
	_, err = s.srv.Entries.Delete(s.ctx, "a", "missing")
	s.status(err, http.StatusNotFound, ErrEntryNotFound)
}

func (s *ServicesSuite) TestDeleteBlobFailureKeepsRecord() {
	f := s.upload("a", "report.pdf", nil)
	s.blobs.FailDelete = errors.New("store unavailable")

	_, err := s.srv.Entries.Delete(s.ctx, "a", f.ID)
	s.status(err, http.StatusInternalServerError, nil)
	_, err = s.store.Entries().Get(s.ctx, f.ID)
	s.NoError(err, "retry must still find the record")
}

func (s *ServicesSuite) TestFolderDetails() {
	s.user("a", "Ann", "a@x.io")
	s.user("b", "Bob", "b@x.io")
	photos := s.folder("a", "Photos", nil)
	f := s.upload("a", "report.pdf", nil)

	e, err := s.srv.Entries.FolderDetails(s.ctx, "a", photos.ID)
	s.Require().NoError(err)
	s.Equal("Photos", e.Name)

	_, err = s.srv.Entries.FolderDetails(s.ctx, "b", photos.ID)
	s.status(err, http.StatusNotFound, ErrEntryNotFound)

	s.Require().NoError(s.srv.Shares.ShareWithEmail(s.ctx, "a", photos.ID, "b@x.io"))
	_, err = s.srv.Entries.FolderDetails(s.ctx, "b", photos.ID)
	s.NoError(err)

	_, err = s.srv.Entries.FolderDetails(s.ctx, "a", f.ID)
	s.status(err, http.StatusNotFound, ErrEntryNotFound)
}

func (s *ServicesSuite) TestUpdateRenameAndMove() {
	docs := s.folder("a", "Docs", nil)
	f := s.upload("a", "report.pdf", nil)
	s.upload("a", "taken.pdf", &docs.ID)

	e, err := s.srv.Entries.Update(s.ctx, "a", f.ID, ptr("final.pdf"), &docs.ID)
	s.Require().NoError(err)
	s.Equal("final.pdf", e.Name)
	s.Equal(docs.ID, *e.ParentID)

	_, err = s.srv.Entries.Update(s.ctx, "a", f.ID, ptr("taken.pdf"), nil)
	s.status(err, http.StatusBadRequest, ErrDuplicateName)

	e, err = s.srv.Entries.Update(s.ctx, "a", f.ID, nil, ptr(""))
	s.Require().NoError(err)
	s.Nil(e.ParentID)

	_, err = s.srv.Entries.Update(s.ctx, "b", f.ID, ptr("mine.pdf"), nil)
	s.status(err, http.StatusNotFound, ErrEntryNotFound)
}

func (s *ServicesSuite) TestMoveIntoDescendantIsRejected() {
	a := s.folder("a", "A", nil)
	b := s.folder("a", "B", &a.ID)
	c := s.folder("a", "C", &b.ID)

	_, err := s.srv.Entries.Update(s.ctx, "a", a.ID, nil, &c.ID)
	s.status(err, http.StatusBadRequest, ErrCycle)

	_, err = s.srv.Entries.Update(s.ctx, "a", a.ID, nil, &a.ID)
	s.status(err, http.StatusBadRequest, ErrCycle)

	// moving a leaf up is fine
	_, err = s.srv.Entries.Update(s.ctx, "a", c.ID, nil, &a.ID)
	s.NoError(err)
}

func (s *ServicesSuite) TestPurgeOwner() {
	photos := s.folder("a", "Photos", nil)
	s.upload("a", "one.pdf", &photos.ID)
	s.upload("a", "two.pdf", nil)
	s.upload("b", "keep.pdf", nil)

	s.Require().NoError(s.srv.Entries.PurgeOwner(s.ctx, "a"))
	s.Equal(1, s.blobs.Len())
	left, total, err := s.store.Entries().List(s.ctx, "a", store.ListFilter{}, 0, 10)
	s.Require().NoError(err)
	s.Zero(total)
	s.Empty(left)
	res, err := s.srv.Entries.List(s.ctx, "b", ListParams{})
	s.Require().NoError(err)
	s.Len(res.Items, 1)
}
