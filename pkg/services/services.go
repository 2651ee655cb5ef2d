// Package services implements the file, sharing and account operations on
// top of the store, object store, cache and mailer.
package services

import (
	"time"

	"github.com/tgdrive/filebox/internal/cache"
	"github.com/tgdrive/filebox/internal/config"
	"github.com/tgdrive/filebox/internal/mailer"
	"github.com/tgdrive/filebox/internal/storage"
	"github.com/tgdrive/filebox/pkg/store"
)

type Clock func() time.Time

func UTCNow() time.Time { return time.Now().UTC() }

type Deps struct {
	Store   store.Store
	Objects storage.ObjectStore
	Cache   cache.Cacher
	Mailer  *mailer.Mailer
	Config  *config.ServerCmdConfig
	// Now defaults to UTCNow.
	Now Clock
}

type Services struct {
	Entries *EntryService
	Shares  *ShareService
	Auth    *AuthService
	Users   *UserService
	Sweep   *SweepService
}

func New(d Deps) *Services {
	if d.Now == nil {
		d.Now = UTCNow
	}
	cnf := d.Config
	entries := NewEntryService(d.Store, d.Objects, &cnf.Files, d.Now)
	return &Services{
		Entries: entries,
		Shares:  NewShareService(d.Store, d.Cache, d.Mailer, cnf.Server.FrontendURL, cnf.Cache.TTL, d.Now),
		Auth:    NewAuthService(d.Store, d.Cache, d.Mailer, &cnf.JWT, &cnf.Auth, d.Now),
		Users:   NewUserService(d.Store, entries, d.Cache, d.Mailer, d.Now),
		Sweep:   NewSweepService(d.Store, d.Objects, cnf.CronJobs.SweepBatch, cnf.CronJobs.PendingRetention, d.Now),
	}
}
