package services

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tgdrive/filebox/internal/cache"
	"github.com/tgdrive/filebox/internal/mailer"
	"github.com/tgdrive/filebox/pkg/models"
	"github.com/tgdrive/filebox/pkg/schemas"
	"github.com/tgdrive/filebox/pkg/store"
)

// pausingStore holds the next Entries().Get once armed until release is
// closed.
type pausingStore struct {
	store.Store
	armed   atomic.Bool
	paused  chan struct{}
	release chan struct{}
}

func newPausingStore(st store.Store) *pausingStore {
	return &pausingStore{Store: st, paused: make(chan struct{}), release: make(chan struct{})}
}

func (p *pausingStore) Entries() store.Entries { return pausingEntries{p.Store.Entries(), p} }

type pausingEntries struct {
	store.Entries
	p *pausingStore
}

func (e pausingEntries) Get(ctx context.Context, id string) (*models.Entry, error) {
	got, err := e.Entries.Get(ctx, id)
	if e.p.armed.CompareAndSwap(true, false) {
		close(e.p.paused)
		<-e.p.release
	}
	return got, err
}

func tokenOf(url string) string {
	return url[strings.LastIndexByte(url, '/')+1:]
}

func (s *ServicesSuite) TestShareWithEmail() {
	s.user("a", "Ann", "a@x.io")
	s.user("b", "Bob", "b@x.io")
	f := s.upload("a", "report.pdf", nil)

	s.Require().NoError(s.srv.Shares.ShareWithEmail(s.ctx, "a", f.ID, "B@X.io"))
	msg, ok := s.mails.Last("b@x.io")
	s.Require().True(ok)
	s.Contains(msg.HTML, "Ann")
	s.Contains(msg.HTML, "report.pdf")

	// granting again changes nothing and sends nothing
	sent := len(s.mails.Sent())
	s.Require().NoError(s.srv.Shares.ShareWithEmail(s.ctx, "a", f.ID, "b@x.io"))
	s.Len(s.mails.Sent(), sent)

	e, err := s.store.Entries().Get(s.ctx, f.ID)
	s.Require().NoError(err)
	s.Require().Len(e.SharedWith, 1)
	s.Equal("b", e.SharedWith[0].UserID)
}

func (s *ServicesSuite) TestShareWithEmailErrors() {
	s.user("a", "Ann", "a@x.io")
	s.user("b", "Bob", "b@x.io")
	f := s.upload("a", "report.pdf", nil)

	err := s.srv.Shares.ShareWithEmail(s.ctx, "a", f.ID, "a@x.io")
	s.status(err, http.StatusBadRequest, ErrSelfShare)

	// self-share is refused before ownership is checked
	err = s.srv.Shares.ShareWithEmail(s.ctx, "a", "missing", "a@x.io")
	s.status(err, http.StatusBadRequest, ErrSelfShare)

	err = s.srv.Shares.ShareWithEmail(s.ctx, "a", f.ID, "nobody@x.io")
	s.status(err, http.StatusNotFound, ErrUserNotFound)

	err = s.srv.Shares.ShareWithEmail(s.ctx, "b", f.ID, "a@x.io")
	s.status(err, http.StatusNotFound, ErrEntryNotFound)
}

func (s *ServicesSuite) TestLinkExpires() {
	f := s.upload("a", "report.pdf", nil)
	days := 1
	link, err := s.srv.Shares.GenerateLink(s.ctx, "a", f.ID, &days)
	s.Require().NoError(err)
	s.Require().NotNil(link.ExpiresAt)
	s.Equal(s.clock.Add(24*time.Hour), *link.ExpiresAt)
	s.True(strings.HasPrefix(link.URL, "http://app.local/share/"+f.ID+"/"))
	token := link.URL[strings.LastIndexByte(link.URL, '/')+1:]

	item, err := s.srv.Shares.AccessByLink(s.ctx, f.ID, token)
	s.Require().NoError(err)
	s.Equal(f.ID, item.Entry.ID)
	s.Nil(item.Contents)

	s.advance(24*time.Hour - time.Second)
	_, err = s.srv.Shares.AccessByLink(s.ctx, f.ID, token)
	s.Require().NoError(err)

	s.advance(time.Second)
	_, err = s.srv.Shares.AccessByLink(s.ctx, f.ID, token)
	s.status(err, http.StatusForbidden, ErrLinkExpired)
}

func (s *ServicesSuite) TestLinkWithoutExpiry() {
	f := s.upload("a", "report.pdf", nil)
	link, err := s.srv.Shares.GenerateLink(s.ctx, "a", f.ID, nil)
	s.Require().NoError(err)
	s.Nil(link.ExpiresAt)

	s.advance(365 * 24 * time.Hour)
	token := link.URL[strings.LastIndexByte(link.URL, '/')+1:]
	_, err = s.srv.Shares.AccessByLink(s.ctx, f.ID, token)
	s.NoError(err)
}

func (s *ServicesSuite) TestRegeneratedLinkReplacesOld() {
	f := s.upload("a", "report.pdf", nil)
	first, err := s.srv.Shares.GenerateLink(s.ctx, "a", f.ID, nil)
	s.Require().NoError(err)
	oldToken := first.URL[strings.LastIndexByte(first.URL, '/')+1:]
	_, err = s.srv.Shares.AccessByLink(s.ctx, f.ID, oldToken)
	s.Require().NoError(err)

	second, err := s.srv.Shares.GenerateLink(s.ctx, "a", f.ID, nil)
	s.Require().NoError(err)
	s.NotEqual(first.URL, second.URL)
	newToken := second.URL[strings.LastIndexByte(second.URL, '/')+1:]

	_, err = s.srv.Shares.AccessByLink(s.ctx, f.ID, oldToken)
	s.status(err, http.StatusForbidden, ErrInvalidLink)
	_, err = s.srv.Shares.AccessByLink(s.ctx, f.ID, newToken)
	s.NoError(err)
}

func (s *ServicesSuite) TestRevokeLink() {
	f := s.upload("a", "report.pdf", nil)
	link, err := s.srv.Shares.GenerateLink(s.ctx, "a", f.ID, nil)
	s.Require().NoError(err)
	token := link.URL[strings.LastIndexByte(link.URL, '/')+1:]
	_, err = s.srv.Shares.AccessByLink(s.ctx, f.ID, token)
	s.Require().NoError(err)

	s.status(s.srv.Shares.RevokeLink(s.ctx, "b", f.ID), http.StatusNotFound, ErrEntryNotFound)
	s.Require().NoError(s.srv.Shares.RevokeLink(s.ctx, "a", f.ID))

	_, err = s.srv.Shares.AccessByLink(s.ctx, f.ID, token)
	s.status(err, http.StatusForbidden, ErrInvalidLink)
}

func (s *ServicesSuite) TestLinkErrors() {
	f := s.upload("a", "report.pdf", nil)
	zero := 0
	_, err := s.srv.Shares.GenerateLink(s.ctx, "a", f.ID, &zero)
	s.status(err, http.StatusBadRequest, ErrInvalidDays)

	_, err = s.srv.Shares.GenerateLink(s.ctx, "b", f.ID, nil)
	s.status(err, http.StatusNotFound, ErrEntryNotFound)

	_, err = s.srv.Shares.AccessByLink(s.ctx, f.ID, "anything")
	s.status(err, http.StatusForbidden, ErrInvalidLink)

	_, err = s.srv.Shares.AccessByLink(s.ctx, "missing", "anything")
	s.status(err, http.StatusNotFound, ErrEntryNotFound)

	// the link of a deleted entry stops working
	link, err := s.srv.Shares.GenerateLink(s.ctx, "a", f.ID, nil)
	s.Require().NoError(err)
	token := link.URL[strings.LastIndexByte(link.URL, '/')+1:]
	_, err = s.srv.Shares.AccessByLink(s.ctx, f.ID, token)
	s.Require().NoError(err)
	_, err = s.srv.Entries.Delete(s.ctx, "a", f.ID)
	s.Require().NoError(err)
	_, err = s.srv.Shares.AccessByLink(s.ctx, f.ID, token)
	s.status(err, http.StatusNotFound, ErrEntryNotFound)
}

func (s *ServicesSuite) TestFolderLinkListsContents() {
	photos := s.folder("a", "Photos", nil)
	pic := s.upload("a", "beach.pdf", &photos.ID)
	s.upload("a", "elsewhere.pdf", nil)

	link, err := s.srv.Shares.GenerateLink(s.ctx, "a", photos.ID, nil)
	s.Require().NoError(err)
	token := link.URL[strings.LastIndexByte(link.URL, '/')+1:]

	item, err := s.srv.Shares.AccessByLink(s.ctx, photos.ID, token)
	s.Require().NoError(err)
	s.Require().Len(item.Contents, 1)
	s.Equal(pic.ID, item.Contents[0].ID)
}

// concurrent runs an AccessByLink that has read the entry but not yet
// finished while change runs, then checks the link state afterwards.
func (s *ServicesSuite) concurrentAccess(change, check func(srv *Services, f *models.Entry, token string)) {
	ps := newPausingStore(s.store)
	srv := New(Deps{
		Store:   ps,
		Objects: s.blobs,
		Cache:   cache.NewMemoryCache(1 << 20),
		Mailer:  mailer.New(s.mails),
		Config:  s.cnf,
		Now:     func() time.Time { return s.clock },
	})
	f := s.upload("a", "report.pdf", nil)
	link, err := srv.Shares.GenerateLink(s.ctx, "a", f.ID, nil)
	s.Require().NoError(err)

	ps.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := srv.Shares.AccessByLink(s.ctx, f.ID, tokenOf(link.URL))
		done <- err
	}()
	<-ps.paused
	change(srv, f, tokenOf(link.URL))
	close(ps.release)
	s.Require().NoError(<-done)
	check(srv, f, tokenOf(link.URL))
}

func (s *ServicesSuite) TestRegenerateDuringAccess() {
	var newToken string
	s.concurrentAccess(func(srv *Services, f *models.Entry, _ string) {
		link, err := srv.Shares.GenerateLink(s.ctx, "a", f.ID, nil)
		s.Require().NoError(err)
		newToken = tokenOf(link.URL)
	}, func(srv *Services, f *models.Entry, oldToken string) {
		s.NotEqual(oldToken, newToken)
		_, err := srv.Shares.AccessByLink(s.ctx, f.ID, oldToken)
		s.status(err, http.StatusForbidden, ErrInvalidLink)
		_, err = srv.Shares.AccessByLink(s.ctx, f.ID, newToken)
		s.NoError(err)
	})
}

func (s *ServicesSuite) TestDeleteDuringAccess() {
	s.concurrentAccess(func(srv *Services, f *models.Entry, _ string) {
		_, err := srv.Entries.Delete(s.ctx, "a", f.ID)
		s.Require().NoError(err)
	}, func(srv *Services, f *models.Entry, token string) {
		item, err := srv.Shares.AccessByLink(s.ctx, f.ID, token)
		s.Nil(item)
		s.status(err, http.StatusNotFound, ErrEntryNotFound)
	})
}

func (s *ServicesSuite) TestLinkShowsRenameAndMove() {
	docs := s.folder("a", "Docs", nil)
	f := s.upload("a", "r.pdf", nil)
	link, err := s.srv.Shares.GenerateLink(s.ctx, "a", f.ID, nil)
	s.Require().NoError(err)
	token := tokenOf(link.URL)

	item, err := s.srv.Shares.AccessByLink(s.ctx, f.ID, token)
	s.Require().NoError(err)
	s.Equal("r.pdf", item.Entry.Name)

	_, err = s.srv.Entries.Update(s.ctx, "a", f.ID, ptr("renamed.pdf"), &docs.ID)
	s.Require().NoError(err)

	item, err = s.srv.Shares.AccessByLink(s.ctx, f.ID, token)
	s.Require().NoError(err)
	s.Equal("renamed.pdf", item.Entry.Name)
	s.Require().NotNil(item.Entry.ParentID)
	s.Equal(docs.ID, *item.Entry.ParentID)
}

func (s *ServicesSuite) TestShareNoticeUsesCurrentName() {
	s.user("a", "Ann", "a@x.io")
	s.user("b", "Bob", "b@x.io")
	s.user("c", "Cid", "c@x.io")
	f := s.upload("a", "report.pdf", nil)
	g := s.upload("a", "notes.pdf", nil)

	s.Require().NoError(s.srv.Shares.ShareWithEmail(s.ctx, "a", f.ID, "b@x.io"))
	_, err := s.srv.Users.UpdateProfile(s.ctx, "a", &schemas.UpdateProfile{Name: ptr("Annie")})
	s.Require().NoError(err)

	s.Require().NoError(s.srv.Shares.ShareWithEmail(s.ctx, "a", g.ID, "c@x.io"))
	msg, ok := s.mails.Last("c@x.io")
	s.Require().True(ok)
	s.Equal(`Annie shared "notes.pdf" with you`, msg.Subject)
}
