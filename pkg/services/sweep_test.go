package services

import (
	"time"

	"github.com/go-faster/errors"

	"github.com/tgdrive/filebox/pkg/models"
)

func (s *ServicesSuite) TestSweepReleasesOrphans() {
	s.store.FailEntryCreate = errors.New("db down")
	s.blobs.FailDelete = errors.New("store unavailable")
	for _, n := range []string{"one.pdf", "two.pdf"} {
		_, err := s.srv.Entries.Upload(s.ctx, "a", s.file(n, nil, "x"))
		s.Require().Error(err)
	}
	s.Equal(2, s.blobs.Len())

	res, err := s.srv.Sweep.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(SweepResult{Failed: 2}, *res)
	orphans, err := s.store.Orphans().List(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(orphans, 2)
	s.Equal(1, orphans[0].Attempts)
	s.Require().NotNil(orphans[0].LastError)
	s.Equal("store unavailable", *orphans[0].LastError)

	s.blobs.FailDelete = nil
	res, err = s.srv.Sweep.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(SweepResult{Released: 2}, *res)
	s.Equal(0, s.blobs.Len())

	orphans, err = s.store.Orphans().List(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(orphans)
}

func (s *ServicesSuite) TestPurgePending() {
	exp := s.clock.Add(-8 * 24 * time.Hour)
	recent := s.clock.Add(-time.Hour)
	s.Require().NoError(s.store.Users().Create(s.ctx, &models.User{
		ID: "stale", Name: "Old", Email: "old@x.io", PhoneNumber: "1", OTPExpiresAt: &exp,
	}))
	s.Require().NoError(s.store.Users().Create(s.ctx, &models.User{
		ID: "fresh", Name: "New", Email: "new@x.io", PhoneNumber: "2", OTPExpiresAt: &recent,
	}))
	s.user("a", "Ann", "a@x.io")

	n, err := s.srv.Sweep.PurgePending(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(1, n)

	_, err = s.srv.Users.Profile(s.ctx, "stale")
	s.Error(err)
	_, err = s.srv.Users.Profile(s.ctx, "fresh")
	s.NoError(err)
}

func (s *ServicesSuite) TestCheckFindsDanglingRecords() {
	keep := s.upload("a", "keep.pdf", nil)
	lost := s.upload("a", "lost.pdf", nil)
	s.folder("a", "Docs", nil)
	s.Require().NoError(s.blobs.Delete(s.ctx, *lost.StorageID))

	report, err := s.srv.Sweep.Check(s.ctx, true, true)
	s.Require().NoError(err)
	s.Equal(2, report.Scanned)
	s.Require().Len(report.Dangling, 1)
	s.Equal(lost.ID, report.Dangling[0].ID)
	s.Zero(report.Removed)

	report, err = s.srv.Sweep.Check(s.ctx, true, false)
	s.Require().NoError(err)
	s.Equal(1, report.Removed)

	_, err = s.store.Entries().Get(s.ctx, lost.ID)
	s.Error(err)
	_, err = s.store.Entries().Get(s.ctx, keep.ID)
	s.NoError(err)
}
